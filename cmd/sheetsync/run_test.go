package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/store"
	"github.com/JonMunkholm/sheetsync/internal/table/memtable"
)

func TestSelectJobs(t *testing.T) {
	keys, err := selectJobs(nil, runOptions{group: "content"})
	require.NoError(t, err)
	assert.Equal(t, []string{"seller_articles"}, keys)

	keys, err = selectJobs([]string{"warehouse_remains"}, runOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"warehouse_remains"}, keys)

	keys, err = selectJobs(nil, runOptions{all: true})
	require.NoError(t, err)
	assert.Len(t, keys, core.JobCount())

	_, err = selectJobs(nil, runOptions{})
	assert.Error(t, err)

	_, err = selectJobs(nil, runOptions{group: "nope"})
	assert.Error(t, err)
}

type oneRecord struct{}

func (oneRecord) FetchPage(ctx context.Context, cursor core.Cursor) (core.Page, error) {
	return core.Page{Records: []core.Record{{
		"barcode": "2000001",
		"warehouses": []any{
			map[string]any{"warehouseName": "Коледино", "quantity": 3},
			map[string]any{"warehouseName": "В пути до получателей", "quantity": 1},
		},
	}}}, nil
}

func TestRunJobs_ExitCodes(t *testing.T) {
	tbl := memtable.New()
	tbl.AddSheet("Остатки", [][]any{{"Баркод", "В пути до получателей", "В пути возвраты на склад WB", "Итого по складам"}})

	factory := func(core.JobDefinition) (core.PagedSource, error) { return oneRecord{}, nil }
	opts := core.SyncOptions{Sleep: func(context.Context, time.Duration) error { return nil }}
	svc := core.NewService(tbl, factory, store.NewMemory(10), core.NewRunLimiter(1, time.Second), opts)

	var out bytes.Buffer
	err := runJobs(context.Background(), svc, []string{"warehouse_remains"}, &out, false)
	require.NoError(t, err, out.String())
	assert.Contains(t, out.String(), "warehouse_remains")
	assert.Equal(t, "2000001", tbl.Get("Остатки", "A2"))
	assert.Equal(t, 1.0, tbl.Get("Остатки", "B2"))
	assert.Equal(t, 3.0, tbl.Get("Остатки", "D2"))

	out.Reset()
	err = runJobs(context.Background(), svc, []string{"warehouse_remains", "nope"}, &out, true)
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitFailure, ee.code)
	assert.Contains(t, ee.Error(), "nope")
}
