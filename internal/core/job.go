package core

import "fmt"

// JobInfo contains display information about a job.
type JobInfo struct {
	Key   string `json:"key"`   // Unique identifier: "discounts_prices"
	Group string `json:"group"` // Upstream API family: "prices", "content"
	Label string `json:"label"` // Display name
}

// Pagination modes understood by the HTTP source.
const (
	PaginateNone   = "none"
	PaginateOffset = "offset"
	PaginateCursor = "cursor"
)

// SourceSpec describes the upstream request of a job. Path is relative to
// the source base URL; RecordsPath and CursorPath are dotted paths into the
// JSON response. For GET requests LimitParam, OffsetParam and CursorParam
// name query parameters; for POST they are dotted paths into Body.
type SourceSpec struct {
	Method      string            `json:"method" yaml:"method"`
	Path        string            `json:"path" yaml:"path"`
	Query       map[string]string `json:"query,omitempty" yaml:"query"`
	Body        map[string]any    `json:"body,omitempty" yaml:"body"`
	Pagination  string            `json:"pagination" yaml:"pagination"`
	PageSize    int               `json:"pageSize" yaml:"page_size"`
	LimitParam  string            `json:"limitParam,omitempty" yaml:"limit_param"`
	OffsetParam string            `json:"offsetParam,omitempty" yaml:"offset_param"`
	RecordsPath string            `json:"recordsPath" yaml:"records_path"`
	CursorPath  string            `json:"cursorPath,omitempty" yaml:"cursor_path"`
	CursorParam string            `json:"cursorParam,omitempty" yaml:"cursor_param"`
}

// TransformFunc reshapes one upstream record into zero or more flat records.
// Returning a *RecordShapeError skips the record and counts it as failed.
type TransformFunc func(rec Record) ([]Record, error)

// JobDefinition contains everything needed to sync one sheet.
type JobDefinition struct {
	Info      JobInfo
	Sheet     string
	HeaderRow int // 1-based row holding the titles
	StartRow  int // first data row

	Aliases   AliasTable
	KeyFields []FieldSpec // business key, in order; always required
	Fields    []FieldSpec // tracked value fields

	Source    SourceSpec
	Transform TransformFunc

	MarkAppends   bool   // grey background on appended rows
	UpdateOnly    bool   // never append; keys without a row are reported as not found
	PercentFormat bool   // apply PercentFormat to percent columns after writing
	StampCell     string // A1 cell receiving the "last updated" time, e.g. "Z1"
}

// KeyNames returns the logical keys that form the business key.
func (d JobDefinition) KeyNames() []string {
	names := make([]string, len(d.KeyFields))
	for i, f := range d.KeyFields {
		names[i] = f.Key
	}
	return names
}

// Validate checks that a definition is internally consistent.
func (d JobDefinition) Validate() error {
	switch {
	case d.Info.Key == "":
		return fmt.Errorf("job: empty key")
	case d.Sheet == "":
		return fmt.Errorf("job %s: empty sheet", d.Info.Key)
	case len(d.KeyFields) == 0:
		return fmt.Errorf("job %s: no key fields", d.Info.Key)
	case d.HeaderRow < 1:
		return fmt.Errorf("job %s: header row must be >= 1", d.Info.Key)
	case d.StartRow <= d.HeaderRow:
		return fmt.Errorf("job %s: start row %d must be below header row %d", d.Info.Key, d.StartRow, d.HeaderRow)
	}
	for _, f := range append(append([]FieldSpec(nil), d.KeyFields...), d.Fields...) {
		if _, ok := d.Aliases[f.Key]; !ok {
			return fmt.Errorf("job %s: field %q has no alias entry", d.Info.Key, f.Key)
		}
	}
	return nil
}
