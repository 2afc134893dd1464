// Package core provides the business logic for synchronizing paginated API
// records into spreadsheet-shaped destinations.
//
// This package is the heart of sheetsync, containing all domain logic
// independent of any concrete source, table backend or transport. It can be
// used by the CLI, the HTTP API, the scheduler or tests without modification.
//
// # Architecture
//
// A run of one job flows through these stages:
//
//  1. [IterateAll] walks a [PagedSource] page by page, retrying throttled
//     pages after a fixed delay.
//  2. [Resolve] matches the sheet's header row against the job's
//     [AliasTable] and yields a [HeaderMap].
//  3. [ReadSnapshot] reads the key and tracked columns; [IndexKeys] maps
//     every business key to the first row holding it.
//  4. [Plan] diffs desired records against the snapshot and produces
//     partial-cell updates plus appended rows, grouped into [Segment]s.
//  5. [BatchExecutor] sends the writes in batches of at most
//     [DefaultMaxRanges] ranges.
//  6. [Validator] optionally re-reads the sheet and reconciles it with the
//     source.
//
// [Syncer] wires the stages together for one job; [Service] adds the job
// registry, run ids, the run limiter and report storage.
//
// # Job Registry
//
// Jobs are registered at init time using [Register]. Each [JobDefinition]
// names the sheet, the alias table and the tracked fields:
//
//	core.Register(JobDefinition{
//	    Info:  JobInfo{Key: "discounts_prices", Group: "prices", Label: "Prices"},
//	    Sheet: "Юнитка",
//	    Aliases: AliasTable{
//	        "nmID":  {"nmID", "Артикул WB"},
//	        "price": {"prices", "Цена продавца"},
//	    },
//	    KeyFields: []FieldSpec{{Key: "nmID", Type: FieldNumeric}},
//	    Fields:    []FieldSpec{{Key: "price", Type: FieldNumeric}},
//	})
//
// # Value Conventions
//
// Numbers compare within [NumericTolerance]. Percent fields arrive as whole
// percentages (30) and are stored as fractions (0.30). Bools compare by
// truthiness.
//
// # Error Handling
//
// Schema errors ([AmbiguousHeaderError], [MissingHeaderError]) abort a run
// before anything is written. A failed write batch is logged and skipped.
// Technical errors are mapped to user-facing messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - SRC001-SRC004: Source errors (rate limit, network, retries, status)
//   - HDR001-HDR002: Header errors (ambiguous, missing)
//   - REC001: Malformed source records
//   - WRT001: Write batch failures
//   - RUN001-RUN003: Run errors (busy, cancelled, timeout)
package core
