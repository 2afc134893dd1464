package core

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"
)

// Cursor is an opaque continuation token. The empty cursor starts at the
// first page; sources encode offsets or server tokens in it.
type Cursor string

// Page is one response of a PagedSource. Next is nil on the last page.
type Page struct {
	Records []Record
	Next    *Cursor
}

// PaginationOptions controls IterateAll.
type PaginationOptions struct {
	Start          Cursor
	InterPageDelay time.Duration // fixed pause between page fetches
	MaxPages       int           // 0 means unlimited
	RetryDelay     time.Duration // fixed pause before retrying a throttled page
	MaxAttempts    int           // attempts per page, including the first

	Logger *slog.Logger
	Sleep  func(ctx context.Context, d time.Duration) error
}

// DefaultMaxAttempts is used when PaginationOptions.MaxAttempts is zero.
const DefaultMaxAttempts = 3

// IterateAll walks src page by page and yields every record lazily.
//
// It stops after an empty page, a page without a next cursor, a page whose
// next cursor equals the cursor that fetched it, or after MaxPages pages.
// A page failing with *RateLimitError or *TransientNetworkError is retried
// after RetryDelay, up to MaxAttempts times, and then yields
// *RetryExhaustedError. Any other error is yielded at once. After an error
// the sequence ends.
//
// Delivery is at-least-once: consecutive pages may repeat a record, so
// consumers de-duplicate by key.
func IterateAll(ctx context.Context, src PagedSource, opts PaginationOptions) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
		sleep := opts.Sleep
		if sleep == nil {
			sleep = SleepContext
		}
		attempts := opts.MaxAttempts
		if attempts <= 0 {
			attempts = DefaultMaxAttempts
		}

		cursor := opts.Start
		for pages := 0; opts.MaxPages <= 0 || pages < opts.MaxPages; pages++ {
			if pages > 0 && opts.InterPageDelay > 0 {
				if err := sleep(ctx, opts.InterPageDelay); err != nil {
					yield(nil, err)
					return
				}
			}

			page, err := fetchWithRetry(ctx, src, cursor, attempts, opts.RetryDelay, sleep, logger)
			if err != nil {
				yield(nil, err)
				return
			}

			logger.Debug("page fetched", "cursor", string(cursor), "records", len(page.Records))
			for _, rec := range page.Records {
				if !yield(rec, nil) {
					return
				}
			}

			switch {
			case len(page.Records) == 0:
				return
			case page.Next == nil:
				return
			case *page.Next == cursor:
				logger.Warn("source cursor did not advance, stopping", "cursor", string(cursor))
				return
			}
			cursor = *page.Next
		}
		logger.Info("max pages reached", "max_pages", opts.MaxPages)
	}
}

func fetchWithRetry(
	ctx context.Context,
	src PagedSource,
	cursor Cursor,
	attempts int,
	delay time.Duration,
	sleep func(context.Context, time.Duration) error,
	logger *slog.Logger,
) (Page, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, delay); err != nil {
				return Page{}, err
			}
		}

		page, err := src.FetchPage(ctx, cursor)
		if err == nil {
			return page, nil
		}
		if !IsRetryable(err) {
			return Page{}, err
		}
		lastErr = err

		var rl *RateLimitError
		if errors.As(err, &rl) {
			logger.Warn("source rate limited", "cursor", string(cursor), "attempt", attempt, "max_attempts", attempts)
		} else {
			logger.Warn("source request failed, retrying", "cursor", string(cursor), "attempt", attempt, "error", err)
		}
	}
	return Page{}, &RetryExhaustedError{Cursor: cursor, Attempts: attempts, Err: lastErr}
}
