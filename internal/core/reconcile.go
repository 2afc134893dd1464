package core

import (
	"context"
	"log/slog"
	"sort"
)

// ValidationMismatch is one field whose destination value disagrees with
// the source. Values are reported as read, before unit conversion.
type ValidationMismatch struct {
	Key         RecordKey `json:"key"`
	Row         int       `json:"row"`
	Field       string    `json:"field"`
	SourceValue any       `json:"apiValue"`
	SheetValue  any       `json:"sheetValue"`
}

// FieldCompleteness counts empty destination cells of one field.
type FieldCompleteness struct {
	Field  string  `json:"field"`
	Empty  int     `json:"empty"`
	Filled int     `json:"filled"`
	Ratio  float64 `json:"ratio"` // Filled / (Filled + Empty)
}

// Completeness describes how fully the indexed rows are populated.
type Completeness struct {
	Rows       int                 `json:"rows"`
	Complete   int                 `json:"complete"`   // every field filled
	Incomplete int                 `json:"incomplete"` // some fields filled
	Empty      int                 `json:"empty"`      // no field filled
	Fields     []FieldCompleteness `json:"fields"`
}

// ValidationReport is the result of a read-back comparison.
type ValidationReport struct {
	Checked      int                  `json:"checked"`
	Matched      int                  `json:"matched"`
	Mismatches   []ValidationMismatch `json:"mismatches,omitempty"`
	NotFound     []RecordKey          `json:"notFound,omitempty"`
	Completeness Completeness         `json:"completeness"`
	Passed       bool                 `json:"passed"`
}

// Validator re-reads the destination and compares it with the source.
type Validator struct {
	Reader    TableReader
	KeyFields []string
	Fields    []FieldSpec
	StartRow  int
	Logger    *slog.Logger
}

// Validate reads the current destination state and compares it with source.
func (v *Validator) Validate(ctx context.Context, hm *HeaderMap, source []DesiredRecord) (*ValidationReport, error) {
	snap, err := ReadSnapshot(ctx, v.Reader, hm, v.KeyFields, v.Fields, v.StartRow)
	if err != nil {
		return nil, err
	}
	report := Compare(hm, snap, source, v.Fields)

	logger := v.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("validation finished",
		"checked", report.Checked,
		"matched", report.Matched,
		"mismatches", len(report.Mismatches),
		"not_found", len(report.NotFound),
		"complete_rows", report.Completeness.Complete,
		"passed", report.Passed,
	)
	return report, nil
}

// Compare checks every source record against snap.
//
// Numbers match within NumericTolerance, percent cells are multiplied by 100
// first, and bools compare by truthiness. A key with no row is reported in
// NotFound and does not fail validation; any field mismatch does.
func Compare(hm *HeaderMap, snap Snapshot, source []DesiredRecord, fields []FieldSpec) *ValidationReport {
	var tracked []FieldSpec
	for _, f := range fields {
		if hm.Has(f.Key) {
			tracked = append(tracked, f)
		}
	}

	report := &ValidationReport{}
	for _, rec := range source {
		if rec.Key == "" {
			continue
		}
		report.Checked++

		row, ok := snap.Index.Lookup(rec.Key)
		if !ok {
			report.NotFound = append(report.NotFound, rec.Key)
			continue
		}

		matched := true
		for _, f := range tracked {
			want, has := rec.Values[f.Key]
			if !has || want == nil {
				continue
			}
			cell := snap.Cells[row][f.Key]
			if ValuesEqual(f.Type, want, cell) {
				continue
			}
			matched = false
			report.Mismatches = append(report.Mismatches, ValidationMismatch{
				Key:         rec.Key,
				Row:         row,
				Field:       f.Key,
				SourceValue: want,
				SheetValue:  cell,
			})
		}
		if matched {
			report.Matched++
		}
	}

	report.Completeness = completeness(snap, tracked)
	report.Passed = len(report.Mismatches) == 0
	return report
}

// completeness treats empty cells and zeros as missing; for bools false
// counts as missing.
func completeness(snap Snapshot, fields []FieldSpec) Completeness {
	c := Completeness{Rows: snap.Index.Len()}
	if len(fields) == 0 {
		return c
	}

	stats := make([]FieldCompleteness, len(fields))
	for i, f := range fields {
		stats[i].Field = f.Key
	}

	rows := make([]int, 0, len(snap.Index.Rows))
	for _, row := range snap.Index.Rows {
		rows = append(rows, row)
	}
	sort.Ints(rows)

	for _, row := range rows {
		filled := 0
		for i, f := range fields {
			if cellFilled(f.Type, snap.Cells[row][f.Key]) {
				stats[i].Filled++
				filled++
			} else {
				stats[i].Empty++
			}
		}
		switch filled {
		case len(fields):
			c.Complete++
		case 0:
			c.Empty++
		default:
			c.Incomplete++
		}
	}

	for i := range stats {
		if total := stats[i].Filled + stats[i].Empty; total > 0 {
			stats[i].Ratio = float64(stats[i].Filled) / float64(total)
		}
	}
	c.Fields = stats
	return c
}

func cellFilled(t FieldType, cell any) bool {
	if IsBlank(cell) {
		return false
	}
	switch t {
	case FieldNumeric, FieldPercent:
		f, ok := ParseNumber(cell)
		return !ok || f != 0
	case FieldBool:
		return Truthy(cell)
	default:
		return true
	}
}
