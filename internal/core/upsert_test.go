package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexKeys(t *testing.T) {
	col := []any{"100", "", "  ", 200.0, "100", "300"}
	ri := IndexKeys([][]any{col}, 2, compositeKeyFunc)

	assert.Equal(t, map[RecordKey]int{"100": 2, "200": 5, "300": 7}, ri.Rows)
	assert.Equal(t, []DuplicateKey{{Key: "100", Row: 6, FirstRow: 2}}, ri.Duplicates)
	assert.Equal(t, 7, ri.LastRow)
}

func TestIndexKeys_Composite(t *testing.T) {
	nm := []any{100, 100, 101}
	barcode := []any{"A", "B"} // shorter column: row 4 has no barcode
	ri := IndexKeys([][]any{nm, barcode}, 2, compositeKeyFunc)

	assert.Equal(t, map[RecordKey]int{"100|A": 2, "100|B": 3}, ri.Rows)
	assert.Equal(t, 4, ri.LastRow)
}

func TestIndexKeys_Empty(t *testing.T) {
	ri := IndexKeys([][]any{nil}, 2, compositeKeyFunc)
	assert.Zero(t, ri.Len())
	assert.Equal(t, 1, ri.LastRow)
}

func planFixture() (*HeaderMap, []FieldSpec) {
	hm := NewHeaderMap("S", map[string]int{
		"nmID":     0,
		"price":    1,
		"discount": 2,
		"name":     4,
	})
	fields := []FieldSpec{
		{Key: "price", Type: FieldNumeric},
		{Key: "discount", Type: FieldPercent},
		{Key: "active", Type: FieldBool}, // not in the sheet
	}
	return hm, fields
}

func snapshotOf(startRow, last int, rows map[int]map[string]any) Snapshot {
	s := Snapshot{
		Index:            RowIndex{Rows: map[RecordKey]int{}},
		Cells:            rows,
		StartRow:         startRow,
		LastPopulatedRow: last,
	}
	for row, cells := range rows {
		s.Index.Rows[CompositeKey(cells["nmID"])] = row
	}
	return s
}

func TestPlan_UpdatesOnlyChangedFields(t *testing.T) {
	hm, fields := planFixture()
	snap := snapshotOf(2, 3, map[int]map[string]any{
		2: {"nmID": 1, "price": 100, "discount": 0.1},
		3: {"nmID": 2, "price": 200, "discount": 0.2},
	})

	plan := Plan(hm, snap, []DesiredRecord{
		{Key: "1", Values: map[string]any{"price": 100.004, "discount": 15, "active": true}},
		{Key: "2", Values: map[string]any{"price": 250, "discount": nil}},
	}, fields)

	require.Len(t, plan.Updates, 2)
	assert.Equal(t, "S!C2", plan.Updates[0].Range.String())
	assert.InDelta(t, 0.15, plan.Updates[0].Values[0][0], 1e-9)
	assert.Equal(t, "S!B3", plan.Updates[1].Range.String())
	assert.Equal(t, [][]any{{250.0}}, plan.Updates[1].Values)
	assert.Equal(t, 2, plan.UpdatedRows)
	assert.Empty(t, plan.Appends)
	assert.Equal(t, 2, plan.Cells())
}

func TestPlan_NoChanges(t *testing.T) {
	hm, fields := planFixture()
	snap := snapshotOf(2, 2, map[int]map[string]any{
		2: {"nmID": 1, "price": "1 000,00", "discount": "25%"},
	})
	plan := Plan(hm, snap, []DesiredRecord{
		{Key: "1", Values: map[string]any{"price": 1000, "discount": 25}},
	}, fields)
	assert.True(t, plan.Empty())
}

func TestPlan_AppendsInInputOrder(t *testing.T) {
	hm, fields := planFixture()
	snap := snapshotOf(2, 9, map[int]map[string]any{
		2: {"nmID": 1, "price": 100},
	})

	plan := Plan(hm, snap, []DesiredRecord{
		{Key: "7", Values: map[string]any{"nmID": 7, "price": 70, "name": ` ="Widget" `}},
		{Key: "1", Values: map[string]any{"price": 100}},
		{Key: "5", Values: map[string]any{"nmID": 5, "discount": 5}},
	}, fields)

	require.Len(t, plan.Appends, 2)
	assert.Equal(t, RecordKey("7"), plan.Appends[0].Key)
	assert.Equal(t, 10, plan.Appends[0].Row)
	assert.Equal(t, 11, plan.Appends[1].Row)
	assert.Equal(t, 10, plan.AppendStart)

	// nmID..discount are adjacent, name sits apart in column E
	require.Len(t, plan.AppendWrites, 2)
	assert.Equal(t, "S!A10:C11", plan.AppendWrites[0].Range.String())
	assert.Equal(t, []any{7, 70.0, ""}, plan.AppendWrites[0].Values[0])
	assert.Equal(t, 5, plan.AppendWrites[0].Values[1][0])
	assert.Equal(t, "", plan.AppendWrites[0].Values[1][1])
	assert.InDelta(t, 0.05, plan.AppendWrites[0].Values[1][2], 1e-9)

	assert.Equal(t, "S!E10:E11", plan.AppendWrites[1].Range.String())
	assert.Equal(t, [][]any{{"Widget"}, {""}}, plan.AppendWrites[1].Values)

	assert.Len(t, plan.AppendRanges, 2)
}

func TestPlan_AppendToEmptySheetStartsAtStartRow(t *testing.T) {
	hm, fields := planFixture()
	snap := snapshotOf(4, 3, map[int]map[string]any{})

	plan := Plan(hm, snap, []DesiredRecord{{Key: "1", Values: map[string]any{"nmID": 1}}}, fields)
	assert.Equal(t, 4, plan.AppendStart)
	require.Len(t, plan.AppendWrites, 1)
	assert.Equal(t, "S!A4", plan.AppendWrites[0].Range.String())
}

func TestCompare_Completeness(t *testing.T) {
	hm, fields := planFixture()
	snap := snapshotOf(2, 4, map[int]map[string]any{
		2: {"nmID": 1, "price": 100, "discount": 0.1},
		3: {"nmID": 2, "price": 0, "discount": 0.2},
		4: {"nmID": 3, "price": "", "discount": 0},
	})

	report := Compare(hm, snap, []DesiredRecord{
		{Key: "1", Values: map[string]any{"price": 100.01, "discount": 10}},
	}, fields)

	assert.True(t, report.Passed)
	assert.Equal(t, 1, report.Matched)

	c := report.Completeness
	assert.Equal(t, 3, c.Rows)
	assert.Equal(t, 1, c.Complete)
	assert.Equal(t, 1, c.Incomplete)
	assert.Equal(t, 1, c.Empty)
	require.Len(t, c.Fields, 2)
	assert.Equal(t, "price", c.Fields[0].Field)
	assert.Equal(t, 1, c.Fields[0].Filled)
	assert.InDelta(t, 2.0/3.0, c.Fields[1].Ratio, 1e-9)
}
