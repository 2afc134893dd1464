package gsheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JonMunkholm/sheetsync/internal/a1"
	"github.com/JonMunkholm/sheetsync/internal/core"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []recorded
	status   int
}

type recorded struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
	status := f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "values:batchGet"):
		_, _ = w.Write([]byte(`{"valueRanges":[{"values":[["100"],["101"]]},{"values":[[500]]}]}`))
	case strings.HasSuffix(r.URL.Path, "values:batchUpdate"), strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		_, _ = w.Write([]byte(`{}`))
	case strings.Contains(r.URL.Path, "/values/"):
		_, _ = w.Write([]byte(`{"values":[["Артикул WB","Цена продавца"]]}`))
	default:
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"sheetId":0,"title":"Юнитка"}},{"properties":{"sheetId":42,"title":"Остатки"}}]}`))
	}
}

func newFakeClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "sheet-1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c, api
}

func TestGridRange(t *testing.T) {
	gr := GridRange(7, a1.Range{Sheet: "S", StartCol: 1, StartRow: 5, EndCol: 2, EndRow: 5})
	assert.Equal(t, int64(7), gr.SheetId)
	assert.Equal(t, int64(4), gr.StartRowIndex)
	assert.Equal(t, int64(5), gr.EndRowIndex)
	assert.Equal(t, int64(1), gr.StartColumnIndex)
	assert.Equal(t, int64(3), gr.EndColumnIndex)

	open := GridRange(0, a1.Column("S", 2, 2, a1.Open))
	assert.Zero(t, open.EndRowIndex)
	assert.Equal(t, int64(3), open.EndColumnIndex)
}

func TestClient_ReadAndBatchRead(t *testing.T) {
	c, api := newFakeClient(t)
	ctx := context.Background()

	header, err := c.Read(ctx, a1.Range{Sheet: "Юнитка", StartRow: 1, EndCol: a1.Open, EndRow: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Артикул WB", "Цена продавца"}}, header)

	cols, err := c.BatchRead(ctx, []a1.Range{a1.Column("Юнитка", 0, 2, a1.Open), a1.Column("Юнитка", 1, 2, a1.Open)})
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, [][]any{{"100"}, {"101"}}, cols[0])
	assert.Equal(t, [][]any{{500.0}}, cols[1])

	last := api.requests[len(api.requests)-1]
	assert.Contains(t, last.Query, "valueRenderOption=UNFORMATTED_VALUE")
	assert.Contains(t, last.Query, "ranges=")
}

func TestClient_BatchWrite(t *testing.T) {
	c, api := newFakeClient(t)
	err := c.BatchWrite(context.Background(), []core.PendingWrite{
		{Range: a1.Row("Юнитка", 1, 2, 5), Values: [][]any{{750.0, 0.25}}},
	})
	require.NoError(t, err)

	require.Len(t, api.requests, 1)
	req := api.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "RAW", req.Body["valueInputOption"])
	data := req.Body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "Юнитка!B5:C5", data[0].(map[string]any)["range"])
}

func TestClient_SheetIDIsCached(t *testing.T) {
	c, api := newFakeClient(t)
	ctx := context.Background()

	id, err := c.SheetID(ctx, "Остатки")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = c.SheetID(ctx, "Юнитка")
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
	assert.Len(t, api.requests, 1)

	_, err = c.SheetID(ctx, "Нет")
	assert.Error(t, err)
}

func TestClient_ApplyFormat(t *testing.T) {
	c, api := newFakeClient(t)
	bg := core.NewRowBackground
	err := c.ApplyFormat(context.Background(), 0, a1.Range{Sheet: "S", StartCol: 0, StartRow: 41, EndCol: 2, EndRow: 41}, core.CellFormat{Background: &bg})
	require.NoError(t, err)

	require.Len(t, api.requests, 1)
	reqs := api.requests[0].Body["requests"].([]any)
	repeat := reqs[0].(map[string]any)["repeatCell"].(map[string]any)
	assert.Equal(t, "userEnteredFormat.backgroundColor", repeat["fields"])

	rng := repeat["range"].(map[string]any)
	assert.Equal(t, 0.0, rng["sheetId"])
	assert.Equal(t, 40.0, rng["startRowIndex"])
	assert.Equal(t, 41.0, rng["endRowIndex"])
	assert.Equal(t, 3.0, rng["endColumnIndex"])
}

func TestClient_ThrottlingIsRetryable(t *testing.T) {
	c, api := newFakeClient(t)
	api.status = http.StatusTooManyRequests

	err := c.BatchWrite(context.Background(), []core.PendingWrite{{Range: a1.Cell("S", 0, 1), Values: [][]any{{1}}}})
	var rl *core.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.True(t, core.IsRetryable(err))
}
