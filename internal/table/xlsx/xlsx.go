// Package xlsx is a core.TableClient over a local .xlsx workbook. Every
// successful BatchWrite and ApplyFormat call saves the file.
package xlsx

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetsync/internal/a1"
	"github.com/JonMunkholm/sheetsync/internal/core"
)

// Workbook wraps an open excelize file.
type Workbook struct {
	mu     sync.Mutex
	f      *excelize.File
	path   string
	styles map[styleKey]int
}

type styleKey struct {
	base    int
	bg      string
	pattern string
}

// Open opens path, or creates an empty workbook there when create is true
// and the file does not exist yet.
func Open(path string, create bool) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if !create {
			return nil, fmt.Errorf("open workbook %s: %w", path, err)
		}
		f = excelize.NewFile()
		if err := f.SaveAs(path); err != nil {
			return nil, fmt.Errorf("create workbook %s: %w", path, err)
		}
	}
	return &Workbook{f: f, path: path, styles: make(map[styleKey]int)}, nil
}

// Close releases the underlying file.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// AddSheet creates sheet if it does not exist and writes rows from A1.
func (w *Workbook) AddSheet(name string, rows [][]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if idx, err := w.f.GetSheetIndex(name); err != nil || idx < 0 {
		if _, err := w.f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %q: %w", name, err)
		}
	}
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := w.f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("fill sheet %q: %w", name, err)
		}
	}
	return w.f.Save()
}

// Read implements core.TableClient.
func (w *Workbook) Read(ctx context.Context, rng a1.Range) ([][]any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readLocked(rng)
}

// BatchRead implements core.TableClient.
func (w *Workbook) BatchRead(ctx context.Context, rngs []a1.Range) ([][][]any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cache := make(map[string][][]string)
	out := make([][][]any, len(rngs))
	for i, rng := range rngs {
		rows, ok := cache[rng.Sheet]
		if !ok {
			var err error
			if rows, err = w.rowsLocked(rng.Sheet); err != nil {
				return nil, err
			}
			cache[rng.Sheet] = rows
		}
		out[i] = clip(rows, rng)
	}
	return out, nil
}

// BatchWrite implements core.TableClient. Ranges are checked before any
// cell is touched; the file is saved once per call.
func (w *Workbook) BatchWrite(ctx context.Context, writes []core.PendingWrite) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, pw := range writes {
		if idx, err := w.f.GetSheetIndex(pw.Range.Sheet); err != nil || idx < 0 {
			return fmt.Errorf("write %s: unknown sheet %q", pw.Range, pw.Range.Sheet)
		}
		if pw.Range.EndRow != a1.Open && len(pw.Values) > pw.Range.Height() {
			return fmt.Errorf("write %s: %d rows do not fit", pw.Range, len(pw.Values))
		}
	}

	for _, pw := range writes {
		for r, row := range pw.Values {
			for c, v := range row {
				cell, err := excelize.CoordinatesToCellName(pw.Range.StartCol+c+1, pw.Range.StartRow+r)
				if err != nil {
					return err
				}
				if core.IsBlank(v) {
					v = nil
				}
				if err := w.f.SetCellValue(pw.Range.Sheet, cell, v); err != nil {
					return fmt.Errorf("write %s: %w", cell, err)
				}
			}
		}
	}
	if err := w.f.Save(); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// SheetID implements core.TableClient. The id is the sheet's index.
func (w *Workbook) SheetID(ctx context.Context, name string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx, err := w.f.GetSheetIndex(name)
	if err != nil {
		return 0, err
	}
	if idx < 0 {
		return 0, fmt.Errorf("sheet %q not found", name)
	}
	return int64(idx), nil
}

// ApplyFormat implements core.TableClient. Open ranges are clipped to the
// used area. Existing cell styles are extended, not replaced.
func (w *Workbook) ApplyFormat(ctx context.Context, sheetID int64, rng a1.Range, format core.CellFormat) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sheet := w.f.GetSheetName(int(sheetID))
	if sheet == "" {
		return fmt.Errorf("sheet id %d not found", sheetID)
	}
	rows, err := w.rowsLocked(sheet)
	if err != nil {
		return err
	}
	endRow, endCol := rng.EndRow, rng.EndCol
	if endRow == a1.Open {
		endRow = len(rows)
	}
	if endCol == a1.Open {
		endCol = -1
		for _, row := range rows {
			endCol = max(endCol, len(row)-1)
		}
	}

	bg := ""
	if format.Background != nil {
		bg = hexColor(*format.Background)
	}
	for r := rng.StartRow; r <= endRow; r++ {
		for c := rng.StartCol; c <= endCol; c++ {
			cell, err := excelize.CoordinatesToCellName(c+1, r)
			if err != nil {
				return err
			}
			base, err := w.f.GetCellStyle(sheet, cell)
			if err != nil {
				return err
			}
			id, err := w.styleLocked(styleKey{base: base, bg: bg, pattern: format.NumberPattern})
			if err != nil {
				return err
			}
			if err := w.f.SetCellStyle(sheet, cell, cell, id); err != nil {
				return err
			}
		}
	}
	return w.f.Save()
}

// Style returns the fill color and number format of one cell, for tests and
// the headers command.
func (w *Workbook) Style(sheet, cell string) (fill string, numFmt string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, err := w.f.GetCellStyle(sheet, cell)
	if err != nil {
		return "", "", err
	}
	st, err := w.f.GetStyle(id)
	if err != nil {
		return "", "", err
	}
	if len(st.Fill.Color) > 0 {
		fill = strings.ToUpper(st.Fill.Color[0])
	}
	if st.CustomNumFmt != nil {
		numFmt = *st.CustomNumFmt
	}
	return fill, numFmt, nil
}

func (w *Workbook) styleLocked(key styleKey) (int, error) {
	if id, ok := w.styles[key]; ok {
		return id, nil
	}
	st, err := w.f.GetStyle(key.base)
	if err != nil || st == nil {
		st = &excelize.Style{}
	}
	if key.bg != "" {
		st.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{key.bg}}
	}
	if key.pattern != "" {
		pattern := key.pattern
		st.CustomNumFmt = &pattern
	}
	id, err := w.f.NewStyle(st)
	if err != nil {
		return 0, fmt.Errorf("create style: %w", err)
	}
	w.styles[key] = id
	return id, nil
}

func (w *Workbook) readLocked(rng a1.Range) ([][]any, error) {
	rows, err := w.rowsLocked(rng.Sheet)
	if err != nil {
		return nil, err
	}
	return clip(rows, rng), nil
}

func (w *Workbook) rowsLocked(sheet string) ([][]string, error) {
	if idx, err := w.f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("read: unknown sheet %q", sheet)
	}
	rows, err := w.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// clip cuts rng out of rows and trims trailing blanks the way the Sheets
// API does.
func clip(rows [][]string, rng a1.Range) [][]any {
	endRow := rng.EndRow
	if endRow == a1.Open || endRow > len(rows) {
		endRow = len(rows)
	}

	var out [][]any
	for r := rng.StartRow; r <= endRow; r++ {
		src := rows[r-1]
		endCol := rng.EndCol
		if endCol == a1.Open || endCol >= len(src) {
			endCol = len(src) - 1
		}
		var row []any
		for c := rng.StartCol; c <= endCol; c++ {
			row = append(row, src[c])
		}
		for len(row) > 0 && strings.TrimSpace(row[len(row)-1].(string)) == "" {
			row = row[:len(row)-1]
		}
		out = append(out, row)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}

func hexColor(c core.Color) string {
	channel := func(v float64) int {
		return int(v*255 + 0.5)
	}
	return fmt.Sprintf("%02X%02X%02X", channel(c.Red), channel(c.Green), channel(c.Blue))
}
