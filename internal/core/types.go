package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/a1"
)

// FieldType tells the engine how to encode a value for the destination and
// how to compare a source value against what is already in a cell.
type FieldType int

const (
	FieldString FieldType = iota
	FieldNumeric
	FieldPercent // source sends 0..100, destination stores a 0..1 fraction
	FieldBool
)

var fieldTypeNames = map[FieldType]string{
	FieldString:  "string",
	FieldNumeric: "numeric",
	FieldPercent: "percent",
	FieldBool:    "bool",
}

func (t FieldType) String() string {
	if s, ok := fieldTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// ParseFieldType parses a type tag as used in job files ("numeric", "percent", ...).
func ParseFieldType(s string) (FieldType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "text" {
		return FieldString, nil
	}
	for t, name := range fieldTypeNames {
		if name == s {
			return t, nil
		}
	}
	return FieldString, fmt.Errorf("unknown field type %q", s)
}

// FieldSpec describes one tracked logical field of a job.
type FieldSpec struct {
	Key      string    // Logical key, as used in the AliasTable
	Source   string    // Attribute name in the source record (defaults to Key)
	Type     FieldType // Encoding and comparison rules
	Required bool      // Missing header aborts the run regardless of DriftPolicy
}

// SourceKey returns the record attribute that feeds this field.
func (f FieldSpec) SourceKey() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Key
}

// AliasTable maps a logical key to the header titles that may represent it.
// An empty alias list means the key itself is the only accepted title.
type AliasTable map[string][]string

// Record is one flat key/value record as produced by a PagedSource.
type Record map[string]any

// RecordKey is the canonical string form of a business key, e.g. "100" or
// "100|2000000001" for composite keys.
type RecordKey string

// KeyFunc builds a RecordKey from the raw key cells of one destination row.
// An empty result means the row carries no usable key.
type KeyFunc func(parts []any) RecordKey

// DesiredRecord is the value set the destination should hold for one key.
// Values is keyed by logical field key and includes the key fields, which
// are written for appended rows.
type DesiredRecord struct {
	Key    RecordKey
	Values map[string]any
}

// PendingWrite is one rectangular write against the destination.
type PendingWrite struct {
	Range  a1.Range
	Values [][]any // row-major, len(Values) == Range.Height()
}

// Cells returns the number of cells the write touches.
func (w PendingWrite) Cells() int {
	n := 0
	for _, row := range w.Values {
		n += len(row)
	}
	return n
}

// AppendRow is a desired record that had no row in the destination.
type AppendRow struct {
	Key    RecordKey
	Row    int
	Values map[string]any
}

// Color is an RGB color with components in [0, 1].
type Color struct {
	Red   float64
	Green float64
	Blue  float64
}

// NewRowBackground marks freshly appended rows for review.
var NewRowBackground = Color{Red: 0.9333, Green: 0.9333, Blue: 0.9333}

// CellFormat is the subset of cell formatting the engine applies.
// Zero fields are left untouched by the backend.
type CellFormat struct {
	Background    *Color
	NumberPattern string // e.g. "0.00%"
}

// PercentFormat is applied to percent-typed columns after a write.
const PercentFormat = "0.00%"

// PagedSource yields records page by page.
type PagedSource interface {
	FetchPage(ctx context.Context, cursor Cursor) (Page, error)
}

// TableReader is the read half of a TableClient.
type TableReader interface {
	Read(ctx context.Context, rng a1.Range) ([][]any, error)
	BatchRead(ctx context.Context, rngs []a1.Range) ([][][]any, error)
}

// TableClient is a spreadsheet-shaped destination.
//
// Read returns the populated part of the range only: trailing empty rows
// and trailing empty cells of a row are trimmed, as the Sheets API does.
type TableClient interface {
	TableReader
	BatchWrite(ctx context.Context, writes []PendingWrite) error
	SheetID(ctx context.Context, name string) (int64, error)
	ApplyFormat(ctx context.Context, sheetID int64, rng a1.Range, format CellFormat) error
}

// DriftPolicy decides what happens when optional header keys are missing.
type DriftPolicy int

const (
	DriftContinue DriftPolicy = iota // log and sync the columns that exist
	DriftAbort                       // treat any missing key as fatal
)

func (p DriftPolicy) String() string {
	if p == DriftAbort {
		return "abort"
	}
	return "continue"
}

// ParseDriftPolicy parses "continue" or "abort".
func ParseDriftPolicy(s string) (DriftPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return DriftContinue, nil
	case "abort":
		return DriftAbort, nil
	default:
		return DriftContinue, fmt.Errorf("unknown drift policy %q", s)
	}
}

// RunStatus is the final state of a sync run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial" // completed with failed batches or mismatches
	RunFailed    RunStatus = "failed"
)

// SyncReport summarizes one run of one job.
type SyncReport struct {
	RunID      string        `json:"runId"`
	Job        string        `json:"job"`
	Sheet      string        `json:"sheet"`
	Status     RunStatus     `json:"status"`
	Trigger    string        `json:"trigger,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Duration   time.Duration `json:"duration"`

	Fetched       int      `json:"fetched"`       // records delivered by the source
	Unique        int      `json:"unique"`        // after de-duplication by key
	FailedRecords int      `json:"failedRecords"` // RecordShapeError count
	RecordErrors  []string `json:"recordErrors,omitempty"`

	MissingKeys []string       `json:"missingKeys,omitempty"`
	Duplicates  []DuplicateKey `json:"duplicates,omitempty"`

	UpdatedRows   int         `json:"updatedRows"`
	Appended      int         `json:"appended"`
	NotFound      int         `json:"notFound"`               // keys skipped by update-only jobs
	NotFoundKeys  []RecordKey `json:"notFoundKeys,omitempty"` // first few of them
	CellsPlanned  int         `json:"cellsPlanned"`
	CellsWritten  int         `json:"cellsWritten"`
	BatchesTotal  int         `json:"batchesTotal"`
	BatchesFailed int         `json:"batchesFailed"`
	BatchErrors   []string    `json:"batchErrors,omitempty"`

	Validation *ValidationReport `json:"validation,omitempty"`
	Error      string            `json:"error,omitempty"`
}
