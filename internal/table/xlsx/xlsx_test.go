package xlsx_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetsync/internal/a1"
	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/table/xlsx"
)

type staticSource []core.Record

func (s staticSource) FetchPage(ctx context.Context, cursor core.Cursor) (core.Page, error) {
	return core.Page{Records: s}, nil
}

func openTemp(t *testing.T) (*xlsx.Workbook, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.xlsx")
	wb, err := xlsx.Open(path, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wb.Close() })
	return wb, path
}

func TestWorkbook_ReadTrimsLikeSheets(t *testing.T) {
	wb, _ := openTemp(t)
	require.NoError(t, wb.AddSheet("Data", [][]any{
		{"a", "b", ""},
		{"1", "", ""},
	}))

	rows, err := wb.Read(context.Background(), a1.Range{Sheet: "Data", StartRow: 1, EndCol: a1.Open, EndRow: a1.Open})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"a", "b"}, {"1"}}, rows)

	col, err := wb.Read(context.Background(), a1.Column("Data", 1, 2, a1.Open))
	require.NoError(t, err)
	assert.Empty(t, col)

	_, err = wb.Read(context.Background(), a1.Cell("Nope", 0, 1))
	assert.Error(t, err)
}

func TestWorkbook_BatchWriteRejectsUnknownSheet(t *testing.T) {
	wb, _ := openTemp(t)
	err := wb.BatchWrite(context.Background(), []core.PendingWrite{
		{Range: a1.Cell("Missing", 0, 1), Values: [][]any{{"x"}}},
	})
	assert.Error(t, err)
}

func TestWorkbook_SyncEndToEnd(t *testing.T) {
	wb, path := openTemp(t)
	require.NoError(t, wb.AddSheet("Юнитка", [][]any{
		{"Артикул WB", "Цена продавца", "Скидка продавца"},
		{101, 500, 0.1},
	}))

	job := core.JobDefinition{
		Info:      core.JobInfo{Key: "discounts_prices"},
		Sheet:     "Юнитка",
		HeaderRow: 1,
		StartRow:  2,
		Aliases: core.AliasTable{
			"nmID":     {"Артикул WB"},
			"price":    {"Цена продавца"},
			"discount": {"Скидка продавца"},
		},
		KeyFields:     []core.FieldSpec{{Key: "nmID", Type: core.FieldNumeric}},
		Fields:        []core.FieldSpec{{Key: "price", Type: core.FieldNumeric}, {Key: "discount", Type: core.FieldPercent}},
		MarkAppends:   true,
		PercentFormat: true,
	}
	src := staticSource{
		{"nmID": 101, "price": 550, "discount": 10},
		{"nmID": 102, "price": 900, "discount": 25},
	}
	opts := core.SyncOptions{Validate: true, Sleep: func(context.Context, time.Duration) error { return nil }}

	report, err := core.NewSyncer(src, wb, opts).Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UpdatedRows)
	assert.Equal(t, 1, report.Appended)
	require.NotNil(t, report.Validation)
	assert.True(t, report.Validation.Passed)

	fill, _, err := wb.Style("Юнитка", "A3")
	require.NoError(t, err)
	assert.Equal(t, "EEEEEE", fill)

	_, numFmt, err := wb.Style("Юнитка", "C2")
	require.NoError(t, err)
	assert.Equal(t, "0.00%", numFmt)

	require.NoError(t, wb.Close())
	reopened, err := xlsx.Open(path, false)
	require.NoError(t, err)
	defer reopened.Close()

	rows, err := reopened.Read(context.Background(), a1.Range{Sheet: "Юнитка", StartRow: 2, EndCol: a1.Open, EndRow: a1.Open})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"101", "550", "0.1"}, {"102", "900", "0.25"}}, rows)
}
