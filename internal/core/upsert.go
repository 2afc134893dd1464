package core

import (
	"sort"

	"github.com/JonMunkholm/sheetsync/internal/a1"
)

// UpsertPlan is the minimal set of writes that brings the destination in
// line with the desired records.
type UpsertPlan struct {
	Updates     []PendingWrite // partial-cell writes at existing rows
	UpdatedRows int

	Appends      []AppendRow    // records without a row, in input order
	AppendWrites []PendingWrite // one block per segment covering all appended rows
	AppendRanges []a1.Range     // exactly the cells written for appends, for the review marker
	AppendStart  int
}

// Writes returns updates followed by appends.
func (p UpsertPlan) Writes() []PendingWrite {
	out := make([]PendingWrite, 0, len(p.Updates)+len(p.AppendWrites))
	out = append(out, p.Updates...)
	return append(out, p.AppendWrites...)
}

// Cells is the number of cells the plan writes.
func (p UpsertPlan) Cells() int {
	n := 0
	for _, w := range p.Updates {
		n += w.Cells()
	}
	for _, w := range p.AppendWrites {
		n += w.Cells()
	}
	return n
}

// Empty reports whether the plan writes nothing.
func (p UpsertPlan) Empty() bool {
	return len(p.Updates) == 0 && len(p.AppendWrites) == 0
}

// Plan diffs desired against the existing snapshot.
//
// For a key that already has a row only the tracked fields in fields are
// compared, and only the changed ones are written, grouped by segment. A
// desired value of nil means "no opinion" and is never written. Keys
// without a row are appended after the last populated row in input order;
// every resolved value in the record is written for them, key fields
// included.
func Plan(hm *HeaderMap, existing Snapshot, desired []DesiredRecord, fields []FieldSpec) UpsertPlan {
	var plan UpsertPlan

	types := make(map[string]FieldType, len(fields))
	for _, f := range fields {
		types[f.Key] = f.Type
	}

	for _, rec := range desired {
		row, ok := existing.Index.Lookup(rec.Key)
		if !ok {
			plan.Appends = append(plan.Appends, AppendRow{Key: rec.Key, Values: rec.Values})
			continue
		}

		changed := make(map[string]any)
		var changedKeys []string
		for _, f := range fields {
			want, has := rec.Values[f.Key]
			if !has || want == nil || !hm.Has(f.Key) {
				continue
			}
			cell := existing.Cells[row][f.Key]
			if ValuesEqual(f.Type, want, cell) {
				continue
			}
			changed[f.Key] = EncodeValue(f.Type, want)
			changedKeys = append(changedKeys, f.Key)
		}
		if len(changedKeys) == 0 {
			continue
		}

		plan.UpdatedRows++
		for _, seg := range hm.BuildSegments(changedKeys) {
			values := make([]any, 0, seg.Width())
			for _, k := range seg.Keys() {
				values = append(values, changed[k])
			}
			plan.Updates = append(plan.Updates, PendingWrite{
				Range:  hm.RowRange(seg, row),
				Values: [][]any{values},
			})
		}
	}

	if len(plan.Appends) == 0 {
		return plan
	}

	plan.AppendStart = max(existing.StartRow, existing.LastPopulatedRow+1)
	for i := range plan.Appends {
		plan.Appends[i].Row = plan.AppendStart + i
	}
	lastRow := plan.AppendStart + len(plan.Appends) - 1

	colSet := make(map[string]bool)
	for _, ar := range plan.Appends {
		for k, v := range ar.Values {
			if v != nil && hm.Has(k) {
				colSet[k] = true
			}
		}
	}
	cols := make([]string, 0, len(colSet))
	for k := range colSet {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	for _, seg := range hm.BuildSegments(cols) {
		block := make([][]any, len(plan.Appends))
		for i, ar := range plan.Appends {
			values := make([]any, 0, seg.Width())
			for _, k := range seg.Keys() {
				v, ok := ar.Values[k]
				if !ok || v == nil {
					values = append(values, "")
					continue
				}
				if t, tracked := types[k]; tracked {
					values = append(values, EncodeValue(t, v))
				} else if str, isStr := v.(string); isStr {
					values = append(values, CleanCell(str))
				} else {
					values = append(values, v)
				}
			}
			block[i] = values
		}
		rng := hm.BlockRange(seg, plan.AppendStart, lastRow)
		plan.AppendWrites = append(plan.AppendWrites, PendingWrite{Range: rng, Values: block})
		plan.AppendRanges = append(plan.AppendRanges, rng)
	}

	return plan
}
