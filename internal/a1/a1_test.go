package a1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// Column letters
// ----------------------------------------------------------------------------

func TestColumnLetter(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{701, "ZZ"},
		{702, "AAA"},
		{16383, "XFD"},
		{-1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ColumnLetter(tt.index))
		})
	}
}

func TestColumnIndex_RoundTrip(t *testing.T) {
	for i := 0; i < 20000; i++ {
		letters := ColumnLetter(i)
		got, err := ColumnIndex(letters)
		require.NoError(t, err, "index %d", i)
		require.Equal(t, i, got, "letters %s", letters)
	}
}

func TestColumnIndex_Invalid(t *testing.T) {
	for _, in := range []string{"", " ", "A1", "Ä", "-"} {
		_, err := ColumnIndex(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestColumnIndex_LowerCase(t *testing.T) {
	got, err := ColumnIndex("aa")
	require.NoError(t, err)
	assert.Equal(t, 26, got)
}

// ----------------------------------------------------------------------------
// Sheet quoting
// ----------------------------------------------------------------------------

func TestQuoteSheet(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Sheet1", "Sheet1"},
		{"cyrillic", "Юнитка", "Юнитка"},
		{"space", "My Sheet", "'My Sheet'"},
		{"quote", "Bob's", "'Bob''s'"},
		{"dash", "a-b", "'a-b'"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteSheet(tt.in))
		})
	}
}

// ----------------------------------------------------------------------------
// Range formatting and parsing
// ----------------------------------------------------------------------------

func TestRange_String(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		want string
	}{
		{"row segment", Row("Юнитка", 1, 2, 5), "Юнитка!B5:C5"},
		{"open column", Column("My Sheet", 1, 2, Open), "'My Sheet'!B2:B"},
		{"closed column", Column("", 3, 2, 40), "D2:D40"},
		{"single cell", Cell("S", 2, 7), "S!C7"},
		{"whole row", Range{StartRow: 1, EndCol: Open, EndRow: 1}, "1:1"},
		{"row from column C", Range{Sheet: "S", StartCol: 2, StartRow: 3, EndCol: Open, EndRow: 3}, "S!C3:3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.String())
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Range
	}{
		{"Sheet1!B2:C5", Range{Sheet: "Sheet1", StartCol: 1, StartRow: 2, EndCol: 2, EndRow: 5}},
		{"'My Sheet'!B2:B", Range{Sheet: "My Sheet", StartCol: 1, StartRow: 2, EndCol: 1, EndRow: Open}},
		{"'Bob''s'!A1", Range{Sheet: "Bob's", StartCol: 0, StartRow: 1, EndCol: 0, EndRow: 1}},
		{"A:A", Range{StartCol: 0, StartRow: 1, EndCol: 0, EndRow: Open}},
		{"1:1", Range{StartCol: 0, StartRow: 1, EndCol: Open, EndRow: 1}},
		{"C7", Range{StartCol: 2, StartRow: 7, EndCol: 2, EndRow: 7}},
		{"C3:3", Range{StartCol: 2, StartRow: 3, EndCol: Open, EndRow: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	for _, r := range []Range{
		Row("Юнитка", 1, 2, 5),
		Column("My Sheet", 4, 2, Open),
		Cell("Bob's", 30, 12),
		Row("S", 0, 27, 41),
	} {
		got, err := Parse(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"", "S!", "B", "A0", "A1:?"} {
		_, err := Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestRange_Dimensions(t *testing.T) {
	r := Row("S", 1, 3, 5)
	assert.Equal(t, 3, r.Width())
	assert.Equal(t, 1, r.Height())

	open := Column("S", 1, 2, Open)
	assert.Equal(t, 1, open.Width())
	assert.Equal(t, 0, open.Height())
}
