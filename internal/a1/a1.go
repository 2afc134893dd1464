// Package a1 converts between zero-based column indexes and spreadsheet
// column letters, and formats/parses A1-notation ranges.
//
// It is the single place where column arithmetic happens; the header
// resolver, range builder, row locator and every table backend go through it.
package a1

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Open marks an unbounded edge of a Range (no end row, or no end column).
const Open = -1

// ColumnLetter returns the letter form of a zero-based column index
// (0 → "A", 25 → "Z", 26 → "AA"). Negative indexes return "".
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}
	var b [8]byte
	n := len(b)
	for {
		n--
		b[n] = byte('A' + index%26)
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return string(b[n:])
}

// ColumnIndex parses a column letter ("A", "aa") into a zero-based index.
func ColumnIndex(letters string) (int, error) {
	letters = strings.TrimSpace(letters)
	if letters == "" {
		return 0, fmt.Errorf("empty column letter")
	}
	idx := 0
	for _, r := range letters {
		switch {
		case r >= 'A' && r <= 'Z':
			idx = idx*26 + int(r-'A') + 1
		case r >= 'a' && r <= 'z':
			idx = idx*26 + int(r-'a') + 1
		default:
			return 0, fmt.Errorf("invalid column letter %q", letters)
		}
		if idx > 1<<24 {
			return 0, fmt.Errorf("column letter %q out of range", letters)
		}
	}
	return idx - 1, nil
}

// QuoteSheet returns the sheet name as it must appear in a range reference.
// Names containing anything other than letters, digits or underscores are
// wrapped in single quotes, with embedded quotes doubled.
func QuoteSheet(name string) string {
	if name == "" {
		return ""
	}
	if !needsQuote(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func needsQuote(name string) bool {
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return true
		}
	}
	return false
}

// Range is a rectangular A1 range. Columns are zero-based, rows one-based.
// EndCol or EndRow may be Open for "to the end of the sheet".
type Range struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// Cell returns the single-cell range at (col, row).
func Cell(sheet string, col, row int) Range {
	return Range{Sheet: sheet, StartCol: col, StartRow: row, EndCol: col, EndRow: row}
}

// Column returns a single-column range from startRow to endRow (Open for no end).
func Column(sheet string, col, startRow, endRow int) Range {
	return Range{Sheet: sheet, StartCol: col, StartRow: startRow, EndCol: col, EndRow: endRow}
}

// Row returns the range covering columns [startCol, endCol] of one row.
func Row(sheet string, startCol, endCol, row int) Range {
	return Range{Sheet: sheet, StartCol: startCol, StartRow: row, EndCol: endCol, EndRow: row}
}

// Width is the number of columns spanned, or 0 when EndCol is Open.
func (r Range) Width() int {
	if r.EndCol == Open {
		return 0
	}
	return r.EndCol - r.StartCol + 1
}

// Height is the number of rows spanned, or 0 when EndRow is Open.
func (r Range) Height() int {
	if r.EndRow == Open {
		return 0
	}
	return r.EndRow - r.StartRow + 1
}

// String renders the range in A1 notation, e.g. Юнитка!B5:C5 or 'My Sheet'!B2:B.
func (r Range) String() string {
	var b strings.Builder
	if r.Sheet != "" {
		b.WriteString(QuoteSheet(r.Sheet))
		b.WriteByte('!')
	}

	// Whole-row form: 1:1, or C3:3 when it starts past column A
	if r.EndCol == Open {
		if r.StartCol > 0 {
			b.WriteString(ColumnLetter(r.StartCol))
		}
		b.WriteString(strconv.Itoa(r.StartRow))
		b.WriteByte(':')
		if r.EndRow != Open {
			b.WriteString(strconv.Itoa(r.EndRow))
		}
		return b.String()
	}

	b.WriteString(ColumnLetter(r.StartCol))
	b.WriteString(strconv.Itoa(r.StartRow))
	if r.StartCol == r.EndCol && r.StartRow == r.EndRow {
		return b.String()
	}
	b.WriteByte(':')
	b.WriteString(ColumnLetter(r.EndCol))
	if r.EndRow != Open {
		b.WriteString(strconv.Itoa(r.EndRow))
	}
	return b.String()
}

// Parse reads an A1 range such as "Sheet1!B2:C5", "'My Sheet'!B2:B",
// "A:A", "C7" or "1:1".
func Parse(s string) (Range, error) {
	var r Range
	s = strings.TrimSpace(s)
	if s == "" {
		return r, fmt.Errorf("empty range")
	}

	if i := strings.LastIndex(s, "!"); i >= 0 {
		sheet := s[:i]
		if len(sheet) >= 2 && sheet[0] == '\'' && sheet[len(sheet)-1] == '\'' {
			sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
		}
		r.Sheet = sheet
		s = s[i+1:]
	}

	start, end, hasEnd := strings.Cut(s, ":")
	sc, sr, err := parseRef(start)
	if err != nil {
		return r, fmt.Errorf("parse range %q: %w", s, err)
	}
	if !hasEnd {
		if sc == Open || sr == Open {
			return r, fmt.Errorf("parse range %q: incomplete cell reference", s)
		}
		return Range{Sheet: r.Sheet, StartCol: sc, StartRow: sr, EndCol: sc, EndRow: sr}, nil
	}
	ec, er, err := parseRef(end)
	if err != nil {
		return r, fmt.Errorf("parse range %q: %w", s, err)
	}

	r.StartCol, r.EndCol = sc, ec
	r.StartRow, r.EndRow = sr, er

	// "1:1" style: row-only references; "C3:3" runs from C to the row's end
	if sc == Open {
		r.StartCol = 0
	}
	if ec == Open {
		r.EndCol = Open
	}
	// "A:A" style: column-only references start at row 1
	if sr == Open {
		r.StartRow = 1
	}
	return r, nil
}

// parseRef splits "B12" into (1, 12). Missing parts are returned as Open.
func parseRef(ref string) (col, row int, err error) {
	ref = strings.TrimSpace(ref)
	i := 0
	for i < len(ref) && ((ref[i] >= 'A' && ref[i] <= 'Z') || (ref[i] >= 'a' && ref[i] <= 'z')) {
		i++
	}
	col, row = Open, Open
	if i > 0 {
		if col, err = ColumnIndex(ref[:i]); err != nil {
			return Open, Open, err
		}
	}
	if i < len(ref) {
		n, convErr := strconv.Atoi(ref[i:])
		if convErr != nil || n < 1 {
			return Open, Open, fmt.Errorf("invalid row in %q", ref)
		}
		row = n
	}
	if col == Open && row == Open {
		return Open, Open, fmt.Errorf("empty reference")
	}
	return col, row, nil
}
