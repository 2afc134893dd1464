package core

import (
	"sort"

	"github.com/JonMunkholm/sheetsync/internal/a1"
)

// Segment is a maximal run of logical keys whose columns are consecutive.
// Segments only come from BuildSegments, so a row range built from one can
// never cover a column that is not in the segment.
type Segment struct {
	keys  []string
	start int
	end   int
}

// Keys returns the segment's keys in column order.
func (s Segment) Keys() []string { return s.keys }

// Start is the zero-based index of the first column.
func (s Segment) Start() int { return s.start }

// End is the zero-based index of the last column.
func (s Segment) End() int { return s.end }

// Width is the number of columns in the segment.
func (s Segment) Width() int { return s.end - s.start + 1 }

// NewHeaderMap builds a HeaderMap from known column positions, for callers
// that already know the layout.
func NewHeaderMap(sheet string, columns map[string]int) *HeaderMap {
	hm := &HeaderMap{Sheet: sheet, columns: make(map[string]HeaderInfo, len(columns))}
	for k, i := range columns {
		hm.columns[k] = HeaderInfo{Title: k, Index: i, Letter: a1.ColumnLetter(i)}
	}
	return hm
}

// ColumnRange returns the single-column range of key from startRow to
// endRow. endRow <= 0 leaves the range open ('Sheet'!B2:B).
func (hm *HeaderMap) ColumnRange(key string, startRow, endRow int) (a1.Range, bool) {
	info, ok := hm.columns[key]
	if !ok {
		return a1.Range{}, false
	}
	if endRow <= 0 {
		endRow = a1.Open
	}
	return a1.Column(hm.Sheet, info.Index, startRow, endRow), true
}

// RowRange returns the range covering seg at row.
func (hm *HeaderMap) RowRange(seg Segment, row int) a1.Range {
	return a1.Row(hm.Sheet, seg.start, seg.end, row)
}

// BlockRange returns the range covering seg over rows [firstRow, lastRow].
func (hm *HeaderMap) BlockRange(seg Segment, firstRow, lastRow int) a1.Range {
	return a1.Range{Sheet: hm.Sheet, StartCol: seg.start, StartRow: firstRow, EndCol: seg.end, EndRow: lastRow}
}

// BuildSegments sorts keys by column and splits them wherever the next
// column is not exactly the previous one plus one. Unresolved keys are
// ignored and duplicates collapse.
func (hm *HeaderMap) BuildSegments(keys []string) []Segment {
	type col struct {
		key   string
		index int
	}
	seen := make(map[string]bool, len(keys))
	cols := make([]col, 0, len(keys))
	for _, k := range keys {
		info, ok := hm.columns[k]
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		cols = append(cols, col{key: k, index: info.Index})
	}
	if len(cols) == 0 {
		return nil
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].index < cols[j].index })

	var segments []Segment
	cur := Segment{keys: []string{cols[0].key}, start: cols[0].index, end: cols[0].index}
	for _, c := range cols[1:] {
		if c.index == cur.end+1 {
			cur.keys = append(cur.keys, c.key)
			cur.end = c.index
			continue
		}
		segments = append(segments, cur)
		cur = Segment{keys: []string{c.key}, start: c.index, end: c.index}
	}
	return append(segments, cur)
}
