package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/a1"
	"github.com/JonMunkholm/sheetsync/internal/logging"
)

// StampLayout formats the "last updated" cell.
const StampLayout = "2006-01-02 15:04:05"

// maxReportedErrors caps the error strings copied into a SyncReport.
const maxReportedErrors = 50

// SyncOptions tunes one Syncer.
type SyncOptions struct {
	Pagination PaginationOptions
	MaxRanges  int
	BatchPause time.Duration
	Drift      DriftPolicy
	Validate   bool   // re-read the sheet after writing and reconcile
	StampText  string // prefix written before the stamp time

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Syncer runs jobs from one source into one table.
type Syncer struct {
	source PagedSource
	table  TableClient
	opts   SyncOptions
}

// NewSyncer returns a Syncer reading from source and writing to table.
func NewSyncer(source PagedSource, table TableClient, opts SyncOptions) *Syncer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	if opts.Pagination.Sleep == nil {
		opts.Pagination.Sleep = opts.Sleep
	}
	return &Syncer{source: source, table: table, opts: opts}
}

// Run synchronizes job once.
//
// The returned report is never nil. A non-nil error means the run failed
// before writing (schema errors, source errors, unreadable destination);
// failed batches and validation mismatches only downgrade Status to
// RunPartial.
func (s *Syncer) Run(ctx context.Context, job JobDefinition) (*SyncReport, error) {
	report := &SyncReport{
		RunID:     logging.RunIDFromContext(ctx),
		Job:       job.Info.Key,
		Sheet:     job.Sheet,
		Trigger:   TriggerFromContext(ctx),
		StartedAt: s.opts.Now(),
	}
	logger := logging.WithFields(ctx, "job", job.Info.Key, "sheet", job.Sheet)

	err := s.run(ctx, job, report, logger)

	report.FinishedAt = s.opts.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	switch {
	case err != nil:
		report.Status = RunFailed
		report.Error = err.Error()
		logger.Error("sync failed", "error", err, "duration_ms", report.Duration.Milliseconds())
		return report, err
	case report.BatchesFailed > 0, report.FailedRecords > 0,
		report.Validation != nil && !report.Validation.Passed:
		report.Status = RunPartial
	default:
		report.Status = RunSucceeded
	}

	logger.Info("sync finished",
		"status", report.Status,
		"fetched", report.Fetched,
		"updated_rows", report.UpdatedRows,
		"appended", report.Appended,
		"cells_written", report.CellsWritten,
		"batches_failed", report.BatchesFailed,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

func (s *Syncer) run(ctx context.Context, job JobDefinition, report *SyncReport, logger *slog.Logger) error {
	hm, err := s.ResolveHeader(ctx, job)
	if err != nil {
		return err
	}
	skipped, err := hm.CheckDrift(s.opts.Drift, job.Fields, job.KeyNames()...)
	if err != nil {
		return err
	}
	report.MissingKeys = hm.Missing
	if len(skipped) > 0 {
		logger.Warn("header keys missing, columns skipped", "keys", skipped)
	}

	desired, err := s.collect(ctx, job, report, logger)
	if err != nil {
		return err
	}

	snap, err := ReadSnapshot(ctx, s.table, hm, job.KeyNames(), job.Fields, job.StartRow)
	if err != nil {
		return err
	}
	report.Duplicates = snap.Index.Duplicates
	for _, d := range snap.Index.Duplicates {
		logger.Warn("duplicate key in sheet, only the first row is updated",
			"key", string(d.Key), "row", d.Row, "first_row", d.FirstRow)
	}

	toPlan := desired
	if job.UpdateOnly {
		var notFound []RecordKey
		toPlan, notFound = splitUnmatched(snap.Index, desired)
		report.NotFound = len(notFound)
		report.NotFoundKeys = notFound[:min(len(notFound), maxReportedErrors)]
		if len(notFound) > 0 {
			logger.Warn("keys not found in sheet, skipped", "count", len(notFound), "keys", report.NotFoundKeys)
		}
	}

	plan := Plan(hm, snap, toPlan, job.Fields)
	report.UpdatedRows = plan.UpdatedRows
	report.Appended = len(plan.Appends)
	logger.Info("upsert planned",
		"existing_rows", snap.Index.Len(),
		"updated_rows", plan.UpdatedRows,
		"appends", len(plan.Appends),
		"append_start", plan.AppendStart,
		"cells", plan.Cells(),
	)

	exec := &BatchExecutor{
		Client:    s.table,
		MaxRanges: s.opts.MaxRanges,
		Pause:     s.opts.BatchPause,
		Logger:    logger,
		Sleep:     s.opts.Sleep,
	}
	res := exec.Execute(ctx, plan.Writes())
	report.CellsPlanned = res.CellsPlanned
	report.CellsWritten = res.CellsWritten
	report.BatchesTotal = res.Batches
	report.BatchesFailed = res.Failed
	for _, e := range res.Errors {
		if len(report.BatchErrors) < maxReportedErrors {
			report.BatchErrors = append(report.BatchErrors, e.Error())
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if res.CellsWritten > 0 {
		// plan.Writes puts the appends after the updates
		var appended []a1.Range
		for i, rng := range plan.AppendRanges {
			if res.Wrote(len(plan.Updates) + i) {
				appended = append(appended, rng)
			}
		}
		lastRow := snap.LastPopulatedRow
		if len(appended) > 0 {
			lastRow = max(lastRow, plan.Appends[len(plan.Appends)-1].Row)
		}
		s.format(ctx, job, hm, appended, lastRow, logger)
	}

	if job.StampCell != "" && res.Failed == 0 {
		if err := s.stamp(ctx, job); err != nil {
			logger.Warn("could not write last-updated stamp", "cell", job.StampCell, "error", err)
		}
	}

	if s.opts.Validate {
		v := &Validator{
			Reader:    s.table,
			KeyFields: job.KeyNames(),
			Fields:    job.Fields,
			StartRow:  job.StartRow,
			Logger:    logger,
		}
		vr, err := v.Validate(ctx, hm, toPlan)
		if err != nil {
			return fmt.Errorf("validate: %w", err)
		}
		report.Validation = vr
	}
	return nil
}

// ResolveHeader reads the header row of job's sheet and resolves its
// aliases.
func (s *Syncer) ResolveHeader(ctx context.Context, job JobDefinition) (*HeaderMap, error) {
	rows, err := s.table.Read(ctx, a1.Range{
		Sheet:    job.Sheet,
		StartRow: job.HeaderRow,
		EndCol:   a1.Open,
		EndRow:   job.HeaderRow,
	})
	if err != nil {
		return nil, fmt.Errorf("read header of %q: %w", job.Sheet, err)
	}
	var header []string
	if len(rows) > 0 {
		header = make([]string, len(rows[0]))
		for i, v := range rows[0] {
			header[i] = CellString(v)
		}
	}
	return Resolve(job.Sheet, header, job.Aliases)
}

// collect drains the source, reshapes records and de-duplicates them by key.
// The last value of a key wins; keys keep the order they were first seen in.
func (s *Syncer) collect(ctx context.Context, job JobDefinition, report *SyncReport, logger *slog.Logger) ([]DesiredRecord, error) {
	opts := s.opts.Pagination
	opts.Logger = logger

	var (
		desired []DesiredRecord
		pos     = make(map[RecordKey]int)
		index   int
	)
	for rec, err := range IterateAll(ctx, s.source, opts) {
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", job.Info.Key, err)
		}
		report.Fetched++

		flat := []Record{rec}
		if job.Transform != nil {
			out, terr := job.Transform(rec)
			if terr != nil {
				s.recordFailed(report, shapeError(terr, index), logger)
				index++
				continue
			}
			flat = out
		}

		for _, r := range flat {
			d, derr := buildDesired(job, r, index)
			index++
			if derr != nil {
				s.recordFailed(report, derr, logger)
				continue
			}
			if i, seen := pos[d.Key]; seen {
				desired[i] = d
				continue
			}
			pos[d.Key] = len(desired)
			desired = append(desired, d)
		}
	}
	report.Unique = len(desired)
	logger.Info("source drained", "fetched", report.Fetched, "unique", report.Unique, "failed", report.FailedRecords)
	return desired, nil
}

func (s *Syncer) recordFailed(report *SyncReport, err error, logger *slog.Logger) {
	report.FailedRecords++
	if len(report.RecordErrors) < maxReportedErrors {
		report.RecordErrors = append(report.RecordErrors, err.Error())
	}
	logger.Warn("record skipped", "error", err)
}

func shapeError(err error, index int) error {
	var rse *RecordShapeError
	if errors.As(err, &rse) {
		if rse.Index == 0 {
			rse.Index = index
		}
		return rse
	}
	return &RecordShapeError{Index: index, Reason: err.Error()}
}

// buildDesired maps a flat record onto the job's logical keys. Every alias
// key the record carries is kept, so untracked columns are still filled on
// append.
func buildDesired(job JobDefinition, rec Record, index int) (DesiredRecord, error) {
	parts := make([]any, len(job.KeyFields))
	for i, f := range job.KeyFields {
		v := rec[f.SourceKey()]
		if IsBlank(v) {
			return DesiredRecord{}, &RecordShapeError{Index: index, Field: f.SourceKey(), Reason: "missing key value"}
		}
		parts[i] = v
	}

	specs := make(map[string]FieldSpec, len(job.KeyFields)+len(job.Fields))
	for _, f := range job.KeyFields {
		specs[f.Key] = f
	}
	for _, f := range job.Fields {
		specs[f.Key] = f
	}

	values := make(map[string]any, len(job.Aliases))
	for key := range job.Aliases {
		src := key
		spec, tracked := specs[key]
		if tracked {
			src = spec.SourceKey()
		}
		v, ok := rec[src]
		if !ok {
			continue
		}
		if tracked && v != nil && !IsBlank(v) {
			switch spec.Type {
			case FieldNumeric, FieldPercent:
				if _, ok := ParseNumber(v); !ok {
					return DesiredRecord{}, &RecordShapeError{Index: index, Field: src, Reason: fmt.Sprintf("not a number: %v", v)}
				}
			case FieldBool:
				if _, ok := ParseBool(v); !ok {
					return DesiredRecord{}, &RecordShapeError{Index: index, Field: src, Reason: fmt.Sprintf("not a bool: %v", v)}
				}
			}
		}
		values[key] = v
	}
	return DesiredRecord{Key: CompositeKey(parts...), Values: values}, nil
}

// format marks the appended ranges that were written for review and applies
// the percent number format. Formatting failures are logged, never fatal.
func (s *Syncer) format(ctx context.Context, job JobDefinition, hm *HeaderMap, appended []a1.Range, lastRow int, logger *slog.Logger) {
	needMark := job.MarkAppends && len(appended) > 0
	var percent []a1.Range
	if job.PercentFormat {
		for _, f := range job.Fields {
			if f.Type != FieldPercent {
				continue
			}
			if rng, ok := hm.ColumnRange(f.Key, job.StartRow, lastRow); ok {
				percent = append(percent, rng)
			}
		}
	}
	if !needMark && len(percent) == 0 {
		return
	}

	sheetID, err := s.table.SheetID(ctx, job.Sheet)
	if err != nil {
		logger.Warn("sheet id lookup failed, formatting skipped", "error", err)
		return
	}

	if needMark {
		bg := NewRowBackground
		for _, rng := range appended {
			if err := s.table.ApplyFormat(ctx, sheetID, rng, CellFormat{Background: &bg}); err != nil {
				logger.Warn("could not mark appended rows", "range", rng.String(), "error", err)
			}
		}
	}
	for _, rng := range percent {
		if err := s.table.ApplyFormat(ctx, sheetID, rng, CellFormat{NumberPattern: PercentFormat}); err != nil {
			logger.Warn("could not apply percent format", "range", rng.String(), "error", err)
		}
	}
}

// splitUnmatched separates records whose key has a row from those that do
// not, keeping input order in both.
func splitUnmatched(index RowIndex, desired []DesiredRecord) (matched []DesiredRecord, notFound []RecordKey) {
	for _, d := range desired {
		if _, ok := index.Lookup(d.Key); ok {
			matched = append(matched, d)
			continue
		}
		notFound = append(notFound, d.Key)
	}
	return matched, notFound
}

func (s *Syncer) stamp(ctx context.Context, job JobDefinition) error {
	rng, err := a1.Parse(job.StampCell)
	if err != nil {
		return err
	}
	if rng.Sheet == "" {
		rng.Sheet = job.Sheet
	}
	rng.EndCol, rng.EndRow = rng.StartCol, rng.StartRow
	value := s.opts.StampText + s.opts.Now().Format(StampLayout)
	return s.table.BatchWrite(ctx, []PendingWrite{{Range: rng, Values: [][]any{{value}}}})
}
