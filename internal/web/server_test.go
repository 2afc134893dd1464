package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/store"
	"github.com/JonMunkholm/sheetsync/internal/table/memtable"
)

type staticSource []core.Record

func (s staticSource) FetchPage(ctx context.Context, cursor core.Cursor) (core.Page, error) {
	return core.Page{Records: s}, nil
}

func pricesJob() core.JobDefinition {
	return core.JobDefinition{
		Info:      core.JobInfo{Key: "discounts_prices", Group: "prices", Label: "Prices and discounts"},
		Sheet:     "Юнитка",
		HeaderRow: 1,
		StartRow:  2,
		Aliases: core.AliasTable{
			"nmID":  {"nmID", "Артикул WB"},
			"price": {"prices", "Цена продавца"},
		},
		KeyFields: []core.FieldSpec{{Key: "nmID", Type: core.FieldNumeric}},
		Fields:    []core.FieldSpec{{Key: "price", Type: core.FieldNumeric}},
		Source:    core.SourceSpec{Method: http.MethodPost, Path: "/list/goods/filter"},
	}
}

type testEnv struct {
	srv   *Server
	svc   *core.Service
	table *memtable.Table
}

func newTestEnv(t *testing.T, security config.SecurityConfig) *testEnv {
	t.Helper()
	core.Clear()
	t.Cleanup(core.Clear)
	core.Register(pricesJob())

	tbl := memtable.New()
	tbl.AddSheet("Юнитка", [][]any{{"Артикул WB", "Цена продавца"}, {101, 500}})

	src := staticSource{{"nmID": 101, "price": 650}, {"nmID": 102, "price": 700}}
	factory := func(core.JobDefinition) (core.PagedSource, error) { return src, nil }
	opts := core.SyncOptions{Sleep: func(context.Context, time.Duration) error { return nil }}
	svc := core.NewService(tbl, factory, store.NewMemory(10), core.NewRunLimiter(1, 50*time.Millisecond), opts)

	cfg := &config.Config{Security: security}
	cfg.Server.RequestTimeout = 5 * time.Second

	return &testEnv{srv: NewServer(svc, cfg), svc: svc, table: tbl}
}

func (e *testEnv) do(t *testing.T, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, config.SecurityConfig{})
	rec := env.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])
}

func TestListAndGetJobs(t *testing.T) {
	env := newTestEnv(t, config.SecurityConfig{})

	rec := env.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[[]core.JobInfo](t, rec)
	require.Len(t, jobs, 1)
	assert.Equal(t, "discounts_prices", jobs[0].Key)

	rec = env.do(t, http.MethodGet, "/api/jobs?group=content", nil)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/jobs/discounts_prices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[JobResponse](t, rec)
	assert.Equal(t, "Юнитка", job.Sheet)
	assert.Equal(t, []string{"nmID"}, job.KeyFields)
	assert.Equal(t, []string{"price"}, job.Fields)

	rec = env.do(t, http.MethodGet, "/api/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB001", decode[ErrorResponse](t, rec).Code)
}

func TestJobHeaders(t *testing.T) {
	env := newTestEnv(t, config.SecurityConfig{})

	rec := env.do(t, http.MethodGet, "/api/jobs/discounts_prices/headers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[HeadersResponse](t, rec)
	assert.Equal(t, "Юнитка", resp.Sheet)
	assert.Equal(t, ColumnInfo{Title: "Цена продавца", Letter: "B", Index: 1}, resp.Columns["price"])
	assert.Empty(t, resp.Missing)
}

func TestRunSynchronously(t *testing.T) {
	env := newTestEnv(t, config.SecurityConfig{})

	rec := env.do(t, http.MethodPost, "/api/jobs/discounts_prices/run?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[core.SyncReport](t, rec)
	assert.Equal(t, core.RunSucceeded, report.Status)
	assert.Equal(t, core.TriggerHTTP, report.Trigger)
	assert.Equal(t, 1, report.Appended)
	assert.Equal(t, 650.0, env.table.Get("Юнитка", "B2"))

	rec = env.do(t, http.MethodGet, "/api/runs?job=discounts_prices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]core.SyncReport](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].RunID)

	rec = env.do(t, http.MethodGet, "/api/runs/"+report.RunID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartRunInBackground(t *testing.T) {
	env := newTestEnv(t, config.SecurityConfig{})

	rec := env.do(t, http.MethodPost, "/api/jobs/discounts_prices/run", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	runID := decode[map[string]string](t, rec)["runId"]
	require.NotEmpty(t, runID)
	assert.Equal(t, "/api/runs/"+runID, rec.Header().Get("Location"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.svc.Wait(ctx))

	rec = env.do(t, http.MethodGet, "/api/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.RunSucceeded, decode[core.SyncReport](t, rec).Status)
}

func TestRunErrors(t *testing.T) {
	env := newTestEnv(t, config.SecurityConfig{})

	rec := env.do(t, http.MethodPost, "/api/jobs/nope/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RUN004", decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/runs/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunInProgressConflict(t *testing.T) {
	env := newTestEnv(t, config.SecurityConfig{})

	require.True(t, env.svc.Limiter().TryAcquire("other"))
	defer env.svc.Limiter().Release("other")

	rec := env.do(t, http.MethodPost, "/api/jobs/discounts_prices/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "code"))

	rec = env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]json.RawMessage](t, rec)
	assert.Contains(t, status, "limiter")
}

func TestRunRequiresAPIKey(t *testing.T) {
	env := newTestEnv(t, config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}})

	rec := env.do(t, http.MethodPost, "/api/jobs/discounts_prices/run?wait=true", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/jobs/discounts_prices/run?wait=true", http.Header{"X-Api-Key": {"secret"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	// reads stay open
	rec = env.do(t, http.MethodGet, "/api/jobs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
