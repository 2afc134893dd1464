package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/sheetsync/internal/a1"
)

// DuplicateKey is a key found again below its first row. Only FirstRow is
// ever targeted by updates; Row is left untouched.
type DuplicateKey struct {
	Key      RecordKey `json:"key"`
	Row      int       `json:"row"`
	FirstRow int       `json:"firstRow"`
}

// RowIndex maps a business key to the destination row that holds it.
// First occurrence wins.
type RowIndex struct {
	Rows       map[RecordKey]int
	Duplicates []DuplicateKey
	LastRow    int // last row scanned, startRow-1 when the column is empty
}

// Lookup returns the row of key.
func (ri RowIndex) Lookup(key RecordKey) (int, bool) {
	row, ok := ri.Rows[key]
	return row, ok
}

// Len is the number of distinct keys indexed.
func (ri RowIndex) Len() int { return len(ri.Rows) }

// IndexKeys scans key columns read from startRow downward and records the
// first row of every key. columns holds one slice per key field, as returned
// by the table client for that column; they may differ in length. Rows whose
// key is blank are skipped but still counted.
func IndexKeys(columns [][]any, startRow int, keyFn KeyFunc) RowIndex {
	ri := RowIndex{Rows: make(map[RecordKey]int), LastRow: startRow - 1}

	height := 0
	for _, col := range columns {
		height = max(height, len(col))
	}

	parts := make([]any, len(columns))
	for offset := 0; offset < height; offset++ {
		row := startRow + offset
		for i, col := range columns {
			parts[i] = nil
			if offset < len(col) {
				parts[i] = col[offset]
			}
		}
		ri.LastRow = row

		key := keyFn(parts)
		if key == "" {
			continue
		}
		if first, ok := ri.Rows[key]; ok {
			ri.Duplicates = append(ri.Duplicates, DuplicateKey{Key: key, Row: row, FirstRow: first})
			continue
		}
		ri.Rows[key] = row
	}
	return ri
}

// Snapshot is the destination state the upsert planner diffs against.
type Snapshot struct {
	Index            RowIndex
	Cells            map[int]map[string]any // row -> logical key -> raw cell
	StartRow         int
	LastPopulatedRow int // max populated row across all read columns
}

// Cell returns the current cell of field in the row holding key.
func (s Snapshot) Cell(key RecordKey, field string) (any, bool) {
	row, ok := s.Index.Lookup(key)
	if !ok {
		return nil, false
	}
	v, ok := s.Cells[row][field]
	return v, ok
}

// ReadSnapshot reads the key columns and the tracked field columns of hm in
// one batch read and indexes them. Fields that did not resolve are skipped.
// Every other resolved column is read too, since appends may write into
// untracked columns and LastPopulatedRow must cover them.
func ReadSnapshot(ctx context.Context, reader TableReader, hm *HeaderMap, keyFields []string, fields []FieldSpec, startRow int) (Snapshot, error) {
	var (
		rngs []a1.Range
		keys []string
	)
	add := func(key string) {
		for _, k := range keys {
			if k == key {
				return
			}
		}
		if rng, ok := hm.ColumnRange(key, startRow, 0); ok {
			rngs = append(rngs, rng)
			keys = append(keys, key)
		}
	}
	if err := hm.Require(keyFields...); err != nil {
		return Snapshot{}, err
	}
	for _, k := range keyFields {
		add(k)
	}
	nKeys := len(keys)
	for _, f := range fields {
		add(f.Key)
	}
	for _, k := range hm.Keys() {
		add(k)
	}

	data, err := reader.BatchRead(ctx, rngs)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read destination columns: %w", err)
	}
	if len(data) != len(rngs) {
		return Snapshot{}, fmt.Errorf("read destination columns: got %d ranges, want %d", len(data), len(rngs))
	}

	columns := make([][]any, len(keys))
	last := startRow - 1
	for i, matrix := range data {
		col := make([]any, len(matrix))
		for r, row := range matrix {
			if len(row) > 0 {
				col[r] = row[0]
			}
			if len(row) > 0 && !IsBlank(row[0]) {
				last = max(last, startRow+r)
			}
		}
		columns[i] = col
	}

	snap := Snapshot{
		Index:            IndexKeys(columns[:nKeys], startRow, compositeKeyFunc),
		Cells:            make(map[int]map[string]any),
		StartRow:         startRow,
		LastPopulatedRow: last,
	}
	for _, row := range snap.Index.Rows {
		cells := make(map[string]any, len(keys))
		for i, key := range keys {
			if off := row - startRow; off < len(columns[i]) {
				cells[key] = columns[i][off]
			}
		}
		snap.Cells[row] = cells
	}
	return snap, nil
}

func compositeKeyFunc(parts []any) RecordKey { return CompositeKey(parts...) }
