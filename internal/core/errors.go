package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TransientNetworkError is a failed source request that may succeed if
// repeated (HTTP 503, connection reset, timeout).
type TransientNetworkError struct {
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransientNetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient network error: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// RateLimitError is an HTTP 429 from the source. It is kept apart from
// TransientNetworkError so throttling shows up separately in logs.
type RateLimitError struct {
	RetryAfter time.Duration // as advertised by the server, 0 if absent
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limit exceeded: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// RetryExhaustedError is returned when a page kept failing with a retryable
// error for every allowed attempt.
type RetryExhaustedError struct {
	Cursor   Cursor
	Attempts int
	Err      error // last retryable error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts at cursor %q: %v", e.Attempts, e.Cursor, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// AmbiguousHeaderError means several header columns match one logical key.
type AmbiguousHeaderError struct {
	Sheet  string
	Key    string
	Titles []string
}

func (e *AmbiguousHeaderError) Error() string {
	return fmt.Sprintf("ambiguous header for key %q in sheet %q: columns %s",
		e.Key, e.Sheet, strings.Join(quoteAll(e.Titles), ", "))
}

// MissingHeaderError lists logical keys that could not be found in the header.
type MissingHeaderError struct {
	Sheet string
	Keys  []string
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("missing required header in sheet %q: %s", e.Sheet, strings.Join(e.Keys, ", "))
}

// RecordShapeError is one malformed source record. The record is skipped.
type RecordShapeError struct {
	Index  int // position in the fetched stream
	Field  string
	Reason string
}

func (e *RecordShapeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed record #%d: field %q: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed record #%d: %s", e.Index, e.Reason)
}

// WriteBatchError is a batch write call that failed. The batch is skipped
// and the remaining batches still run.
type WriteBatchError struct {
	Batch  int // 1-based batch number
	Ranges int
	Cells  int
	Err    error
}

func (e *WriteBatchError) Error() string {
	return fmt.Sprintf("write batch %d failed (%d ranges, %d cells): %v", e.Batch, e.Ranges, e.Cells, e.Err)
}

func (e *WriteBatchError) Unwrap() error { return e.Err }

// IsFatal reports whether err must stop the run: schema drift makes every
// later range computation meaningless.
func IsFatal(err error) bool {
	var ambiguous *AmbiguousHeaderError
	var missing *MissingHeaderError
	return errors.As(err, &ambiguous) || errors.As(err, &missing)
}

// IsRetryable reports whether the same request may be retried.
func IsRetryable(err error) bool {
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		return false
	}
	var rl *RateLimitError
	var tn *TransientNetworkError
	return errors.As(err, &rl) || errors.As(err, &tn)
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
