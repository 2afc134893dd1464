package core

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discountsAliases = AliasTable{
	"nmID":     {"nmID", "Артикул WB"},
	"prices":   {"prices", "Цена продавца"},
	"discount": {"discount", "Скидка продавца"},
}

// ----------------------------------------------------------------------------
// Resolve
// ----------------------------------------------------------------------------

func TestResolve_DiscountsScenario(t *testing.T) {
	hm, err := Resolve("Юнитка", []string{"nmID", "Цена продавца", "Скидка продавца"}, discountsAliases)
	require.NoError(t, err)

	for key, letter := range map[string]string{"nmID": "A", "prices": "B", "discount": "C"} {
		info, ok := hm.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, letter, info.Letter, key)
	}
	assert.Empty(t, hm.Missing)

	segs := hm.BuildSegments([]string{"prices", "discount"})
	require.Len(t, segs, 1)
	assert.Equal(t, "Юнитка!B5:C5", hm.RowRange(segs[0], 5).String())
}

func TestResolve_Normalization(t *testing.T) {
	hm, err := Resolve("S", []string{"  ЦЕНА   продавца ", "NMID"}, discountsAliases)
	require.NoError(t, err)

	info, ok := hm.Get("prices")
	require.True(t, ok)
	assert.Equal(t, 0, info.Index)
	assert.Equal(t, "  ЦЕНА   продавца ", info.Title)

	info, ok = hm.Get("nmID")
	require.True(t, ok)
	assert.Equal(t, 1, info.Index)

	assert.Equal(t, []string{"discount"}, hm.Missing)
}

func TestResolve_EmptyAliasesMatchKey(t *testing.T) {
	hm, err := Resolve("S", []string{"barcode", "qty"}, AliasTable{"qty": nil})
	require.NoError(t, err)
	info, ok := hm.Get("qty")
	require.True(t, ok)
	assert.Equal(t, "B", info.Letter)
}

func TestResolve_Ambiguous(t *testing.T) {
	tests := []struct {
		name   string
		header []string
	}{
		{"two aliases of one key", []string{"nmID", "prices", "Цена продавца"}},
		{"same alias twice", []string{"nmID", "prices", "discount", "Prices"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm, err := Resolve("S", tt.header, discountsAliases)
			require.Error(t, err)
			assert.Nil(t, hm)

			var amb *AmbiguousHeaderError
			require.True(t, errors.As(err, &amb))
			assert.Equal(t, "prices", amb.Key)
			assert.Len(t, amb.Titles, 2)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestHeaderMap_Require(t *testing.T) {
	hm, err := Resolve("S", []string{"nmID"}, discountsAliases)
	require.NoError(t, err)

	assert.NoError(t, hm.Require("nmID"))

	err = hm.Require("nmID", "prices", "discount")
	var missing *MissingHeaderError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"prices", "discount"}, missing.Keys)
}

func TestHeaderMap_CheckDrift(t *testing.T) {
	hm, err := Resolve("S", []string{"nmID", "Цена продавца"}, discountsAliases)
	require.NoError(t, err)

	fields := []FieldSpec{
		{Key: "prices", Type: FieldNumeric},
		{Key: "discount", Type: FieldPercent},
	}

	skipped, err := hm.CheckDrift(DriftContinue, fields, "nmID")
	require.NoError(t, err)
	assert.Equal(t, []string{"discount"}, skipped)

	_, err = hm.CheckDrift(DriftAbort, fields, "nmID")
	assert.True(t, IsFatal(err))

	fields[1].Required = true
	_, err = hm.CheckDrift(DriftContinue, fields, "nmID")
	assert.True(t, IsFatal(err), "required field is fatal regardless of policy")
}

// ----------------------------------------------------------------------------
// Range Builder
// ----------------------------------------------------------------------------

func TestColumnRange(t *testing.T) {
	hm := NewHeaderMap("My Sheet", map[string]int{"nmID": 0, "prices": 1})

	rng, ok := hm.ColumnRange("prices", 2, 0)
	require.True(t, ok)
	assert.Equal(t, "'My Sheet'!B2:B", rng.String())

	rng, ok = hm.ColumnRange("nmID", 2, 40)
	require.True(t, ok)
	assert.Equal(t, "'My Sheet'!A2:A40", rng.String())

	_, ok = hm.ColumnRange("missing", 2, 0)
	assert.False(t, ok)
}

func TestBuildSegments_SplitsGaps(t *testing.T) {
	hm := NewHeaderMap("S", map[string]int{"a": 1, "b": 2, "c": 4, "d": 5, "e": 9})

	segs := hm.BuildSegments([]string{"e", "d", "a", "c", "b", "unknown", "a"})
	require.Len(t, segs, 3)

	assert.Equal(t, []string{"a", "b"}, segs[0].Keys())
	assert.Equal(t, "S!B7:C7", hm.RowRange(segs[0], 7).String())
	assert.Equal(t, []string{"c", "d"}, segs[1].Keys())
	assert.Equal(t, "S!E7:F7", hm.RowRange(segs[1], 7).String())
	assert.Equal(t, []string{"e"}, segs[2].Keys())
	assert.Equal(t, "S!J7", hm.RowRange(segs[2], 7).String())
}

func TestBuildSegments_Empty(t *testing.T) {
	hm := NewHeaderMap("S", map[string]int{"a": 0})
	assert.Nil(t, hm.BuildSegments(nil))
	assert.Nil(t, hm.BuildSegments([]string{"x"}))
}

// For any set of columns the segments are sorted, disjoint, cover exactly
// the input, and never split two adjacent input columns.
func TestBuildSegments_PartitionLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 500; iter++ {
		columns := map[string]int{}
		var keys []string
		used := map[int]bool{}
		n := rng.Intn(30)
		for i := 0; i < n; i++ {
			idx := rng.Intn(40)
			if used[idx] {
				continue
			}
			used[idx] = true
			key := "k" + string(rune('A'+len(keys)))
			columns[key] = idx
			keys = append(keys, key)
		}
		hm := NewHeaderMap("S", columns)
		segs := hm.BuildSegments(keys)

		var union []int
		prevEnd := -2
		for _, s := range segs {
			require.Greater(t, s.Start(), prevEnd+1, "segments must be sorted with a gap between them")
			require.Equal(t, len(s.Keys()), s.Width(), "segment must not include foreign columns")
			for i, k := range s.Keys() {
				require.Equal(t, s.Start()+i, columns[k])
				union = append(union, columns[k])
			}
			prevEnd = s.End()
		}

		want := make([]int, 0, len(used))
		for idx := range used {
			want = append(want, idx)
		}
		sort.Ints(want)
		if len(want) == 0 {
			require.Empty(t, union)
		} else {
			require.Equal(t, want, union)
		}
	}
}
