package core

import (
	"sort"
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/a1"
)

// HeaderInfo locates one logical key in the destination header row.
type HeaderInfo struct {
	Title  string // header text as it appears in the sheet
	Index  int    // zero-based column index
	Letter string // column letter, e.g. "B"
}

// HeaderMap is the resolved layout of one sheet for one run. It is built by
// Resolve and only read afterwards.
type HeaderMap struct {
	Sheet   string
	Missing []string

	columns map[string]HeaderInfo
}

// NormalizeHeader trims, lowercases and collapses internal whitespace.
func NormalizeHeader(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Resolve matches the header row of sheet against the alias table.
//
// A key with no matching column is recorded in Missing; the caller decides
// whether that is fatal. A key whose aliases match more than one distinct
// column fails with *AmbiguousHeaderError: picking one would send later
// writes to the wrong column.
func Resolve(sheet string, header []string, aliases AliasTable) (*HeaderMap, error) {
	hm := &HeaderMap{
		Sheet:   sheet,
		columns: make(map[string]HeaderInfo, len(aliases)),
	}

	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = NormalizeHeader(h)
	}

	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		wanted := aliases[key]
		if len(wanted) == 0 {
			wanted = []string{key}
		}
		accept := make(map[string]bool, len(wanted))
		for _, w := range wanted {
			if n := NormalizeHeader(w); n != "" {
				accept[n] = true
			}
		}

		var matches []int
		for i, n := range normalized {
			if n != "" && accept[n] {
				matches = append(matches, i)
			}
		}

		switch len(matches) {
		case 0:
			hm.Missing = append(hm.Missing, key)
		case 1:
			i := matches[0]
			hm.columns[key] = HeaderInfo{Title: header[i], Index: i, Letter: a1.ColumnLetter(i)}
		default:
			titles := make([]string, len(matches))
			for j, i := range matches {
				titles[j] = header[i]
			}
			return nil, &AmbiguousHeaderError{Sheet: sheet, Key: key, Titles: titles}
		}
	}

	return hm, nil
}

// Get returns the column of a resolved key.
func (hm *HeaderMap) Get(key string) (HeaderInfo, bool) {
	info, ok := hm.columns[key]
	return info, ok
}

// Has reports whether key was resolved.
func (hm *HeaderMap) Has(key string) bool {
	_, ok := hm.columns[key]
	return ok
}

// Keys returns the resolved keys ordered by column.
func (hm *HeaderMap) Keys() []string {
	keys := make([]string, 0, len(hm.columns))
	for k := range hm.columns {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return hm.columns[keys[i]].Index < hm.columns[keys[j]].Index
	})
	return keys
}

// Require returns *MissingHeaderError naming every key in keys that did not
// resolve.
func (hm *HeaderMap) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if !hm.Has(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &MissingHeaderError{Sheet: hm.Sheet, Keys: missing}
	}
	return nil
}

// CheckDrift applies policy to the keys that did not resolve. Required keys
// are always fatal; optional ones only under DriftAbort. The returned slice
// lists the optional keys that will be skipped this run.
func (hm *HeaderMap) CheckDrift(policy DriftPolicy, fields []FieldSpec, keyFields ...string) ([]string, error) {
	required := append([]string(nil), keyFields...)
	var optional []string
	for _, f := range fields {
		if f.Required {
			required = append(required, f.Key)
		} else if !hm.Has(f.Key) {
			optional = append(optional, f.Key)
		}
	}
	if err := hm.Require(required...); err != nil {
		return nil, err
	}
	if len(optional) > 0 && policy == DriftAbort {
		return nil, &MissingHeaderError{Sheet: hm.Sheet, Keys: optional}
	}
	return optional, nil
}
