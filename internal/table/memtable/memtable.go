// Package memtable is an in-memory core.TableClient. It backs the engine
// tests and the "memory" sheets backend used for dry runs.
package memtable

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/sheetsync/internal/a1"
	"github.com/JonMunkholm/sheetsync/internal/core"
)

type cellPos struct {
	row int // 1-based
	col int // 0-based
}

type sheet struct {
	id      int64
	cells   map[cellPos]any
	formats map[cellPos]core.CellFormat
}

// Table holds any number of named sheets.
type Table struct {
	mu     sync.Mutex
	sheets map[string]*sheet
	nextID int64

	// WriteCalls counts BatchWrite calls.
	WriteCalls int
	// FailWrite, when set, is consulted before each BatchWrite call (1-based)
	// and its error is returned without applying the batch.
	FailWrite func(call int, writes []core.PendingWrite) error
}

// New returns an empty table.
func New() *Table {
	return &Table{sheets: make(map[string]*sheet)}
}

// AddSheet creates a sheet and fills it row by row starting at A1.
func (t *Table) AddSheet(name string, rows [][]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sheetLocked(name)
	for r, row := range rows {
		for c, v := range row {
			if !core.IsBlank(v) {
				s.cells[cellPos{row: r + 1, col: c}] = v
			}
		}
	}
}

// Get returns the value of one cell given in A1 notation ("B5").
func (t *Table) Get(sheetName, ref string) any {
	rng, err := a1.Parse(ref)
	if err != nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sheets[sheetName]
	if !ok {
		return nil
	}
	return s.cells[cellPos{row: rng.StartRow, col: rng.StartCol}]
}

// Format returns the format applied to one cell.
func (t *Table) Format(sheetName, ref string) (core.CellFormat, bool) {
	rng, err := a1.Parse(ref)
	if err != nil {
		return core.CellFormat{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sheets[sheetName]
	if !ok {
		return core.CellFormat{}, false
	}
	f, ok := s.formats[cellPos{row: rng.StartRow, col: rng.StartCol}]
	return f, ok
}

// Read implements core.TableClient.
func (t *Table) Read(ctx context.Context, rng a1.Range) ([][]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readLocked(rng)
}

// BatchRead implements core.TableClient.
func (t *Table) BatchRead(ctx context.Context, rngs []a1.Range) ([][][]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][][]any, len(rngs))
	for i, rng := range rngs {
		m, err := t.readLocked(rng)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// BatchWrite implements core.TableClient. A batch is applied all or nothing.
func (t *Table) BatchWrite(ctx context.Context, writes []core.PendingWrite) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++
	if t.FailWrite != nil {
		if err := t.FailWrite(t.WriteCalls, writes); err != nil {
			return err
		}
	}

	for _, w := range writes {
		if w.Range.EndRow != a1.Open && len(w.Values) > w.Range.Height() {
			return fmt.Errorf("write %s: %d rows do not fit", w.Range, len(w.Values))
		}
		if _, ok := t.sheets[w.Range.Sheet]; !ok {
			return fmt.Errorf("write %s: unknown sheet %q", w.Range, w.Range.Sheet)
		}
	}
	for _, w := range writes {
		s := t.sheets[w.Range.Sheet]
		for r, row := range w.Values {
			for c, v := range row {
				pos := cellPos{row: w.Range.StartRow + r, col: w.Range.StartCol + c}
				if core.IsBlank(v) {
					delete(s.cells, pos)
					continue
				}
				s.cells[pos] = v
			}
		}
	}
	return nil
}

// SheetID implements core.TableClient.
func (t *Table) SheetID(ctx context.Context, name string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sheets[name]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found", name)
	}
	return s.id, nil
}

// ApplyFormat implements core.TableClient. Open-ended ranges are clipped to
// the populated area.
func (t *Table) ApplyFormat(ctx context.Context, sheetID int64, rng a1.Range, format core.CellFormat) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s *sheet
	for _, candidate := range t.sheets {
		if candidate.id == sheetID {
			s = candidate
			break
		}
	}
	if s == nil {
		return fmt.Errorf("sheet id %d not found", sheetID)
	}

	maxRow, maxCol := s.bounds()
	endRow, endCol := rng.EndRow, rng.EndCol
	if endRow == a1.Open {
		endRow = maxRow
	}
	if endCol == a1.Open {
		endCol = maxCol
	}
	for r := rng.StartRow; r <= endRow; r++ {
		for c := rng.StartCol; c <= endCol; c++ {
			pos := cellPos{row: r, col: c}
			cur := s.formats[pos]
			if format.Background != nil {
				bg := *format.Background
				cur.Background = &bg
			}
			if format.NumberPattern != "" {
				cur.NumberPattern = format.NumberPattern
			}
			s.formats[pos] = cur
		}
	}
	return nil
}

func (t *Table) sheetLocked(name string) *sheet {
	if s, ok := t.sheets[name]; ok {
		return s
	}
	t.nextID++
	s := &sheet{id: t.nextID, cells: make(map[cellPos]any), formats: make(map[cellPos]core.CellFormat)}
	t.sheets[name] = s
	return s
}

// readLocked returns the populated part of rng with trailing blanks trimmed.
func (t *Table) readLocked(rng a1.Range) ([][]any, error) {
	s, ok := t.sheets[rng.Sheet]
	if !ok {
		return nil, fmt.Errorf("read %s: unknown sheet %q", rng, rng.Sheet)
	}

	maxRow, maxCol := s.bounds()
	endRow, endCol := rng.EndRow, rng.EndCol
	if endRow == a1.Open || endRow > maxRow {
		endRow = maxRow
	}
	if endCol == a1.Open || endCol > maxCol {
		endCol = maxCol
	}

	var out [][]any
	for r := rng.StartRow; r <= endRow; r++ {
		var row []any
		for c := rng.StartCol; c <= endCol; c++ {
			row = append(row, s.cells[cellPos{row: r, col: c}])
		}
		out = append(out, trimRow(row))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	for i, row := range out {
		for j, v := range row {
			if v == nil {
				out[i][j] = ""
			}
		}
	}
	return out, nil
}

func (s *sheet) bounds() (maxRow, maxCol int) {
	maxCol = -1
	for pos := range s.cells {
		maxRow = max(maxRow, pos.row)
		maxCol = max(maxCol, pos.col)
	}
	return maxRow, maxCol
}

func trimRow(row []any) []any {
	for len(row) > 0 && row[len(row)-1] == nil {
		row = row[:len(row)-1]
	}
	return row
}
