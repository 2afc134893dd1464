package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// JobsFile is the YAML document behind SYNC_JOBS_FILE.
//
//	jobs:
//	  - key: discounts_prices      # overrides the built-in job
//	    sheet: "Юнитка (копия)"
//	    stamp_cell: Z1
//	  - key: warehouse_kazan
//	    extends: warehouse_remains # copy everything, then apply fields below
//	    fields:
//	      - {key: Казань, type: numeric}
type JobsFile struct {
	Jobs []JobEntry `yaml:"jobs"`
}

// JobEntry describes one job. Zero values keep what the base job has.
type JobEntry struct {
	Key       string              `yaml:"key"`
	Extends   string              `yaml:"extends"`
	Group     string              `yaml:"group"`
	Label     string              `yaml:"label"`
	Sheet     string              `yaml:"sheet"`
	HeaderRow int                 `yaml:"header_row"`
	StartRow  int                 `yaml:"start_row"`
	Aliases   map[string][]string `yaml:"aliases"`
	KeyFields []FieldEntry        `yaml:"key_fields"`
	Fields    []FieldEntry        `yaml:"fields"`
	Source    *core.SourceSpec    `yaml:"source"`

	MarkAppends   *bool  `yaml:"mark_appends"`
	UpdateOnly    *bool  `yaml:"update_only"`
	PercentFormat *bool  `yaml:"percent_format"`
	StampCell     string `yaml:"stamp_cell"`
}

// FieldEntry is one field of a JobEntry.
type FieldEntry struct {
	Key      string `yaml:"key"`
	Source   string `yaml:"source"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
}

// LoadJobs parses a jobs file and resolves every entry against the
// registry. Nothing is registered.
func LoadJobs(path string) ([]core.JobDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	return ParseJobs(data)
}

// ParseJobs is LoadJobs on an in-memory document.
func ParseJobs(data []byte) ([]core.JobDefinition, error) {
	var file JobsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse jobs file: %w", err)
	}

	defs := make([]core.JobDefinition, 0, len(file.Jobs))
	seen := make(map[string]bool, len(file.Jobs))
	for i, entry := range file.Jobs {
		if entry.Key == "" {
			return nil, fmt.Errorf("jobs[%d]: key is required", i)
		}
		if seen[entry.Key] {
			return nil, fmt.Errorf("jobs[%d]: duplicate key %q", i, entry.Key)
		}
		seen[entry.Key] = true

		def, err := entry.resolve()
		if err != nil {
			return nil, fmt.Errorf("jobs[%d] %s: %w", i, entry.Key, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ApplyJobs loads path and registers every job, replacing built-ins with
// the same key. It returns the number of jobs applied.
func ApplyJobs(path string) (int, error) {
	defs, err := LoadJobs(path)
	if err != nil {
		return 0, err
	}
	for _, def := range defs {
		if err := core.Put(def); err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}

func (e JobEntry) resolve() (core.JobDefinition, error) {
	base := e.Key
	if e.Extends != "" {
		base = e.Extends
	}
	def, ok := core.Get(base)
	if !ok {
		if e.Extends != "" {
			return core.JobDefinition{}, fmt.Errorf("unknown base job %q", e.Extends)
		}
		def = core.JobDefinition{}
	}

	// never share the base job's maps and slices
	def.Aliases = cloneAliases(def.Aliases)
	def.KeyFields = append([]core.FieldSpec(nil), def.KeyFields...)
	def.Fields = append([]core.FieldSpec(nil), def.Fields...)

	def.Info.Key = e.Key
	if e.Group != "" {
		def.Info.Group = e.Group
	}
	if e.Label != "" {
		def.Info.Label = e.Label
	}
	if e.Sheet != "" {
		def.Sheet = e.Sheet
	}
	if e.HeaderRow != 0 {
		def.HeaderRow = e.HeaderRow
	}
	if e.StartRow != 0 {
		def.StartRow = e.StartRow
	}
	for k, v := range e.Aliases {
		def.Aliases[k] = v
	}
	if len(e.KeyFields) > 0 {
		fields, err := toFieldSpecs(e.KeyFields)
		if err != nil {
			return core.JobDefinition{}, err
		}
		def.KeyFields = fields
	}
	if len(e.Fields) > 0 {
		fields, err := toFieldSpecs(e.Fields)
		if err != nil {
			return core.JobDefinition{}, err
		}
		def.Fields = mergeFields(def.Fields, fields)
	}
	if e.Source != nil {
		def.Source = *e.Source
	}
	if e.MarkAppends != nil {
		def.MarkAppends = *e.MarkAppends
	}
	if e.PercentFormat != nil {
		def.PercentFormat = *e.PercentFormat
	}
	if e.UpdateOnly != nil {
		def.UpdateOnly = *e.UpdateOnly
	}
	if e.StampCell != "" {
		def.StampCell = e.StampCell
	}
	return def, nil
}

func toFieldSpecs(entries []FieldEntry) ([]core.FieldSpec, error) {
	out := make([]core.FieldSpec, len(entries))
	for i, f := range entries {
		if f.Key == "" {
			return nil, fmt.Errorf("field %d: key is required", i)
		}
		t, err := core.ParseFieldType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
		out[i] = core.FieldSpec{Key: f.Key, Source: f.Source, Type: t, Required: f.Required}
	}
	return out, nil
}

// mergeFields replaces fields with the same key and appends new ones.
func mergeFields(base, extra []core.FieldSpec) []core.FieldSpec {
	pos := make(map[string]int, len(base))
	for i, f := range base {
		pos[f.Key] = i
	}
	for _, f := range extra {
		if i, ok := pos[f.Key]; ok {
			base[i] = f
			continue
		}
		pos[f.Key] = len(base)
		base = append(base, f)
	}
	return base
}

func cloneAliases(in core.AliasTable) core.AliasTable {
	out := make(core.AliasTable, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}
