package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"google.golang.org/api/option"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/source"
	"github.com/JonMunkholm/sheetsync/internal/store"
	"github.com/JonMunkholm/sheetsync/internal/table/gsheets"
	"github.com/JonMunkholm/sheetsync/internal/table/memtable"
	"github.com/JonMunkholm/sheetsync/internal/table/xlsx"
)

// userAgent identifies sheetsync to the upstream API.
const userAgent = "sheetsync/1.0"

// app holds the wired components shared by every subcommand.
type app struct {
	cfg     *config.Config
	service *core.Service
	closers []func()
}

// newApp loads configuration and builds the service with its table,
// source factory and report store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	a := &app{cfg: cfg}

	if cfg.Sync.JobsFile != "" {
		n, err := config.ApplyJobs(cfg.Sync.JobsFile)
		if err != nil {
			return nil, err
		}
		slog.Info("jobs file applied", "path", cfg.Sync.JobsFile, "jobs", n)
	}
	slog.Info("jobs registered", "count", core.JobCount(), "groups", len(core.Groups()))

	drift, err := core.ParseDriftPolicy(cfg.Sync.Drift)
	if err != nil {
		return nil, err
	}

	table, err := a.openTable(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	reports, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	core.RunTimeout = cfg.Sync.RunTimeout
	opts := core.SyncOptions{
		Pagination: core.PaginationOptions{
			InterPageDelay: cfg.Source.PageDelay,
			MaxPages:       cfg.Source.MaxPages,
			RetryDelay:     cfg.Source.RetryDelay,
			MaxAttempts:    cfg.Source.MaxAttempts,
		},
		MaxRanges:  cfg.Sync.MaxRanges,
		BatchPause: cfg.Sync.BatchPause,
		Drift:      drift,
		Validate:   cfg.Sync.Validate,
		StampText:  cfg.Sync.StampText,
	}
	limiter := core.NewRunLimiter(cfg.Sync.MaxConcurrentRuns, cfg.Sync.RunWaitTime)
	a.service = core.NewService(table, a.sources, reports, limiter, opts)
	return a, nil
}

// sources builds the upstream client for one job.
func (a *app) sources(def core.JobDefinition) (core.PagedSource, error) {
	src, err := source.New(def.Source, source.Options{
		BaseURL:    a.cfg.Source.BaseURL,
		Token:      a.cfg.Source.Token,
		AuthHeader: a.cfg.Source.AuthHeader,
		UserAgent:  userAgent,
		Timeout:    a.cfg.Source.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (a *app) openTable(ctx context.Context) (core.TableClient, error) {
	sc := a.cfg.Sheets
	switch sc.Backend {
	case config.BackendGSheets:
		var opts []option.ClientOption
		if sc.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(sc.CredentialsFile))
		}
		client, err := gsheets.New(ctx, sc.SpreadsheetID, opts...)
		if err != nil {
			return nil, err
		}
		slog.Info("using google sheets", "spreadsheet", sc.SpreadsheetID)
		return client, nil

	case config.BackendXLSX:
		wb, err := xlsx.Open(sc.XLSXPath, true)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := wb.Close(); err != nil {
				slog.Warn("close workbook", "error", err)
			}
		})
		slog.Info("using xlsx workbook", "path", sc.XLSXPath)
		return wb, nil

	case config.BackendMemory:
		slog.Warn("using in-memory table, nothing will be persisted")
		return memtable.New(), nil

	default:
		return nil, fmt.Errorf("unknown sheets backend %q", sc.Backend)
	}
}

func (a *app) openStore(ctx context.Context) (core.ReportStore, error) {
	dc := a.cfg.Database
	if dc.URL == "" {
		slog.Info("no database configured, keeping run reports in memory")
		return store.NewMemory(store.DefaultMemoryCapacity), nil
	}

	pool, err := store.Connect(ctx, dc.URL, int32(dc.MaxConns), int32(dc.MinConns))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	// Log which database we connected to
	if u, err := url.Parse(dc.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return store.NewPostgres(pool), nil
}

// Close releases the table and database in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
