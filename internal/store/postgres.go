package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// Schema creates the tables used by Postgres. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	run_id          TEXT PRIMARY KEY,
	job             TEXT NOT NULL,
	sheet           TEXT NOT NULL,
	status          TEXT NOT NULL,
	run_trigger     TEXT,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ,
	fetched         INT NOT NULL DEFAULT 0,
	updated_rows    INT NOT NULL DEFAULT 0,
	appended        INT NOT NULL DEFAULT 0,
	cells_written   INT NOT NULL DEFAULT 0,
	batches_failed  INT NOT NULL DEFAULT 0,
	error           TEXT,
	report          JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS sync_runs_job_started_idx ON sync_runs (job, started_at DESC);

CREATE TABLE IF NOT EXISTS sync_mismatches (
	run_id       TEXT NOT NULL REFERENCES sync_runs (run_id) ON DELETE CASCADE,
	record_key   TEXT NOT NULL,
	sheet_row    INT NOT NULL,
	field        TEXT NOT NULL,
	source_value TEXT,
	sheet_value  TEXT
);
CREATE INDEX IF NOT EXISTS sync_mismatches_run_idx ON sync_mismatches (run_id);
`

// DBTX is the subset of pgxpool.Pool used by Postgres.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DBTX = (*pgxpool.Pool)(nil)

// Postgres is a core.ReportStore backed by PostgreSQL.
type Postgres struct {
	db DBTX
}

// NewPostgres wraps an open pool or connection.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// Connect opens a pool for url, verifies it and creates the schema.
func Connect(ctx context.Context, url string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns >= 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := NewPostgres(pool).Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate applies Schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveRun upserts the run row and replaces its mismatch rows in one
// transaction.
func (p *Postgres) SaveRun(ctx context.Context, report *core.SyncReport) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sync_runs
			(run_id, job, sheet, status, run_trigger, started_at, finished_at,
			 fetched, updated_rows, appended, cells_written, batches_failed, error, report)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			fetched = EXCLUDED.fetched,
			updated_rows = EXCLUDED.updated_rows,
			appended = EXCLUDED.appended,
			cells_written = EXCLUDED.cells_written,
			batches_failed = EXCLUDED.batches_failed,
			error = EXCLUDED.error,
			report = EXCLUDED.report`,
		report.RunID, report.Job, report.Sheet, string(report.Status), ToPgText(report.Trigger),
		report.StartedAt, ToPgTimestamptz(report.FinishedAt),
		report.Fetched, report.UpdatedRows, report.Appended, report.CellsWritten, report.BatchesFailed,
		ToPgText(report.Error), doc,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM sync_mismatches WHERE run_id = $1`, report.RunID); err != nil {
		return fmt.Errorf("clear mismatches: %w", err)
	}

	rows := MismatchRows(report)
	if len(rows) > 0 {
		b := &pgx.Batch{}
		for _, m := range rows {
			b.Queue(`INSERT INTO sync_mismatches
				(run_id, record_key, sheet_row, field, source_value, sheet_value)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				report.RunID, m.Key, m.Row, m.Field, ToPgText(m.SourceValue), ToPgText(m.SheetValue))
		}
		br := tx.SendBatch(ctx, b)
		for range rows {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert mismatch: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("insert mismatches: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRuns returns up to limit reports, newest first.
func (p *Postgres) ListRuns(ctx context.Context, job string, limit int) ([]core.SyncReport, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if job == "" {
		rows, err = p.db.Query(ctx,
			`SELECT report FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	} else {
		rows, err = p.db.Query(ctx,
			`SELECT report FROM sync_runs WHERE job = $1 ORDER BY started_at DESC LIMIT $2`, job, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	reports, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.SyncReport, error) {
		var doc []byte
		if err := row.Scan(&doc); err != nil {
			return core.SyncReport{}, err
		}
		var r core.SyncReport
		err := json.Unmarshal(doc, &r)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return reports, nil
}

// GetRun returns one report or core.ErrRunNotFound.
func (p *Postgres) GetRun(ctx context.Context, runID string) (*core.SyncReport, error) {
	var doc []byte
	err := p.db.QueryRow(ctx, `SELECT report FROM sync_runs WHERE run_id = $1`, runID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	var r core.SyncReport
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

// MismatchRow is one sync_mismatches row.
type MismatchRow struct {
	Key         string
	Row         int
	Field       string
	SourceValue string
	SheetValue  string
}

// MismatchRows flattens the validation mismatches of report.
func MismatchRows(report *core.SyncReport) []MismatchRow {
	if report.Validation == nil {
		return nil
	}
	out := make([]MismatchRow, 0, len(report.Validation.Mismatches))
	for _, m := range report.Validation.Mismatches {
		out = append(out, MismatchRow{
			Key:         string(m.Key),
			Row:         m.Row,
			Field:       m.Field,
			SourceValue: core.CellString(m.SourceValue),
			SheetValue:  core.CellString(m.SheetValue),
		})
	}
	return out
}

/* ----------------------------------------
	Pgx Helpers
---------------------------------------- */

func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func ToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
