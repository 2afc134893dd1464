package core

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultMaxRanges is the destination's hard cap on ranges per batch call.
const DefaultMaxRanges = 100

// DefaultBatchPause is the pause between two batch calls.
const DefaultBatchPause = time.Second

// BatchWriter is the write half of a TableClient.
type BatchWriter interface {
	BatchWrite(ctx context.Context, writes []PendingWrite) error
}

// BatchExecutor sends writes in batches of at most MaxRanges ranges, one
// call at a time, pausing between calls. A failed batch is logged and
// skipped; the remaining batches still run.
type BatchExecutor struct {
	Client    BatchWriter
	MaxRanges int
	Pause     time.Duration
	Logger    *slog.Logger

	// Sleep waits between batches; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// BatchResult reports what an Execute call achieved.
type BatchResult struct {
	Batches      int
	Failed       int
	CellsPlanned int
	CellsWritten int
	Errors       []*WriteBatchError

	// Written[i] is true when writes[i] was part of a successful batch.
	Written []bool
}

// Wrote reports whether the write at index i reached the destination.
func (r BatchResult) Wrote(i int) bool {
	return i >= 0 && i < len(r.Written) && r.Written[i]
}

// Err joins the batch errors, or returns nil when every batch succeeded.
func (r BatchResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Execute writes all writes. Only a cancelled context stops it early; the
// batches not attempted then count as planned but unwritten.
func (e *BatchExecutor) Execute(ctx context.Context, writes []PendingWrite) BatchResult {
	var res BatchResult
	for _, w := range writes {
		res.CellsPlanned += w.Cells()
	}
	if len(writes) == 0 {
		return res
	}
	res.Written = make([]bool, len(writes))

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := e.MaxRanges
	if size <= 0 || size > DefaultMaxRanges {
		size = DefaultMaxRanges
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	for start := 0; start < len(writes); start += size {
		if start > 0 && e.Pause > 0 {
			if err := sleep(ctx, e.Pause); err != nil {
				logger.Warn("batch writes interrupted", "error", err, "written_cells", res.CellsWritten)
				return res
			}
		}

		batch := writes[start:min(start+size, len(writes))]
		res.Batches++
		cells := 0
		for _, w := range batch {
			cells += w.Cells()
		}

		if err := e.Client.BatchWrite(ctx, batch); err != nil {
			werr := &WriteBatchError{Batch: res.Batches, Ranges: len(batch), Cells: cells, Err: err}
			res.Failed++
			res.Errors = append(res.Errors, werr)
			logger.Error("write batch failed",
				"batch", res.Batches,
				"ranges", len(batch),
				"cells", cells,
				"error", err,
			)
			if ctx.Err() != nil {
				return res
			}
			continue
		}

		res.CellsWritten += cells
		for i := start; i < start+len(batch); i++ {
			res.Written[i] = true
		}
		logger.Debug("write batch done", "batch", res.Batches, "ranges", len(batch), "cells", cells)
	}

	return res
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
