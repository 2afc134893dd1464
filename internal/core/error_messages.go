// Package core provides the sync engine.
//
// # Error Codes Reference
//
// This file defines operator-facing error messages with codes for support
// reference. The HTTP API and the CLI both report the code next to the
// message so a failed run can be matched against this list.
//
// Error codes are grouped by category:
//
// # Source Errors (SRC001-SRC099)
//
// Errors raised while paging through the upstream API:
//
//	SRC001 - Retries exhausted: The source kept throttling or failing
//	         Action: Wait for the quota window to reset and run again
//	         Types: *RetryExhaustedError
//
//	SRC002 - Rate limited: The source refused the request (HTTP 429)
//	         Action: Increase SOURCE_RETRY_DELAY or SOURCE_PAGE_DELAY
//	         Types: *RateLimitError; Patterns: "rate limit"
//
//	SRC003 - Source unavailable: Network failure or HTTP 503
//	         Action: Check connectivity to the source and run again
//	         Types: *TransientNetworkError; Patterns: "connection refused", "connection reset"
//
//	SRC004 - Source rejected request: Non-retryable HTTP status
//	         Action: Check the source token and the job request settings
//	         Patterns: "source returned status"
//
// # Header Errors (HDR001-HDR099)
//
// Schema drift in the destination header row. These always stop the run:
//
//	HDR001 - Ambiguous header: Several columns match one field
//	         Action: Rename or remove the duplicate column in the sheet
//	         Types: *AmbiguousHeaderError
//
//	HDR002 - Missing header: A required column was not found
//	         Action: Add the column or extend the job's aliases
//	         Types: *MissingHeaderError
//
// # Record Errors (REC001-REC099)
//
//	REC001 - Malformed record: A source record was skipped
//	         Action: Review the record errors listed in the run report
//	         Types: *RecordShapeError
//
// # Write Errors (WRT001-WRT099)
//
//	WRT001 - Write batch failed: Some cells were not written
//	         Action: Run the job again; unchanged cells are skipped
//	         Types: *WriteBatchError
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run in progress: Another run holds the destination
//	         Action: Wait for the current run to finish
//	         Patterns: "sync already running"
//
//	RUN002 - Run cancelled: The run was interrupted
//	         Action: Run the job again; ingestion restarts from the first page
//	         Patterns: "context canceled"
//
//	RUN003 - Run timed out
//	         Action: Increase SYNC_RUN_TIMEOUT or lower SOURCE_MAX_PAGES
//	         Patterns: "context deadline exceeded"
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Unknown job: The job key is not registered
//	         Action: List jobs with "sheetsync jobs"
//	         Patterns: "unknown job"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Report store unavailable: Unable to save run history
//	        Action: Check DATABASE_URL; the sheet itself was updated
//	        Patterns: "report store"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the application logs for the run id
//
// # Matching
//
// Typed errors are matched first with errors.As, in the order of errorKinds.
// Anything else falls back to case-insensitive substring patterns; the first
// matching pattern wins.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides operator-facing error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgRetryExhausted = UserMessage{
		Message: "The source kept throttling or failing",
		Action:  "Wait for the quota window to reset and run again",
		Code:    "SRC001",
	}
	msgRateLimited = UserMessage{
		Message: "The source refused the request (rate limited)",
		Action:  "Increase SOURCE_RETRY_DELAY or SOURCE_PAGE_DELAY",
		Code:    "SRC002",
	}
	msgSourceUnavailable = UserMessage{
		Message: "The source is unavailable",
		Action:  "Check connectivity to the source and run again",
		Code:    "SRC003",
	}
	msgAmbiguousHeader = UserMessage{
		Message: "Several sheet columns match the same field",
		Action:  "Rename or remove the duplicate column in the sheet",
		Code:    "HDR001",
	}
	msgMissingHeader = UserMessage{
		Message: "A required column was not found in the sheet header",
		Action:  "Add the column or extend the job's aliases",
		Code:    "HDR002",
	}
	msgRecordShape = UserMessage{
		Message: "A source record was malformed and skipped",
		Action:  "Review the record errors listed in the run report",
		Code:    "REC001",
	}
	msgWriteBatch = UserMessage{
		Message: "Some cells could not be written",
		Action:  "Run the job again; unchanged cells are skipped",
		Code:    "WRT001",
	}
)

// errorKinds maps typed errors to messages. RetryExhaustedError wraps the
// last rate-limit or network error, so it must be checked before them.
var errorKinds = []struct {
	match func(error) bool
	msg   UserMessage
}{
	{func(err error) bool { var e *RetryExhaustedError; return errors.As(err, &e) }, msgRetryExhausted},
	{func(err error) bool { var e *AmbiguousHeaderError; return errors.As(err, &e) }, msgAmbiguousHeader},
	{func(err error) bool { var e *MissingHeaderError; return errors.As(err, &e) }, msgMissingHeader},
	{func(err error) bool { var e *RateLimitError; return errors.As(err, &e) }, msgRateLimited},
	{func(err error) bool { var e *TransientNetworkError; return errors.As(err, &e) }, msgSourceUnavailable},
	{func(err error) bool { var e *RecordShapeError; return errors.As(err, &e) }, msgRecordShape},
	{func(err error) bool { var e *WriteBatchError; return errors.As(err, &e) }, msgWriteBatch},
}

// errorPattern defines a pattern to match and its corresponding message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns covers errors that reach MapError as plain strings, for
// example after a round trip through the report store.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Source (SRC)
	// =========================================================================
	{pattern: "retry exhausted", msg: msgRetryExhausted},
	{pattern: "rate limit", msg: msgRateLimited},
	{pattern: "transient network error", msg: msgSourceUnavailable},
	{
		pattern: "source returned status",
		msg: UserMessage{
			Message: "The source rejected the request",
			Action:  "Check the source token and the job request settings",
			Code:    "SRC004",
		},
	},

	// =========================================================================
	// Header (HDR) and write (WRT)
	// =========================================================================
	{pattern: "ambiguous header", msg: msgAmbiguousHeader},
	{pattern: "missing required header", msg: msgMissingHeader},
	{pattern: "malformed record", msg: msgRecordShape},
	{pattern: "write batch", msg: msgWriteBatch},

	// =========================================================================
	// Run (RUN)
	// =========================================================================
	{
		pattern: "sync already running",
		msg: UserMessage{
			Message: "Another run is using the destination",
			Action:  "Wait for the current run to finish",
			Code:    "RUN001",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "No run with that id",
			Action:  "List recent runs and use one of their ids",
			Code:    "RUN004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Run the job again; ingestion restarts from the first page",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The run timed out",
			Action:  "Increase SYNC_RUN_TIMEOUT or lower SOURCE_MAX_PAGES",
			Code:    "RUN003",
		},
	},

	// =========================================================================
	// Job (JOB) and store (DB)
	// =========================================================================
	{
		pattern: "unknown job",
		msg: UserMessage{
			Message: "Unknown job",
			Action:  `List jobs with "sheetsync jobs"`,
			Code:    "JOB001",
		},
	},
	{
		pattern: "report store",
		msg: UserMessage{
			Message: "Unable to save run history",
			Action:  "Check DATABASE_URL; the sheet itself was updated",
			Code:    "DB001",
		},
	},
	{pattern: "connection refused", msg: msgSourceUnavailable},
	{pattern: "connection reset", msg: msgSourceUnavailable},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the application logs for the run id",
	Code:    "ERR000",
}

// MapError converts a technical error to an operator-facing message.
//
// Example:
//
//	err := &AmbiguousHeaderError{Key: "prices", Titles: []string{"prices", "Цена продавца"}}
//	msg := MapError(err)
//	// msg.Code == "HDR001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if k.match(err) {
			return k.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
