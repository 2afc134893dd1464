package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetsync/internal/logging"
)

// RunTimeout is the maximum duration of one background run.
var RunTimeout = 30 * time.Minute

// ErrRunNotFound is returned by report stores for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// SourceFactory builds the upstream source for a job.
type SourceFactory func(job JobDefinition) (PagedSource, error)

// ReportStore persists run reports.
type ReportStore interface {
	SaveRun(ctx context.Context, report *SyncReport) error
	ListRuns(ctx context.Context, job string, limit int) ([]SyncReport, error)
	GetRun(ctx context.Context, runID string) (*SyncReport, error)
}

// Service is the entry point used by the CLI, the HTTP API and the
// scheduler. It owns the destination client and serializes runs.
type Service struct {
	table   TableClient
	sources SourceFactory
	store   ReportStore
	limiter *RunLimiter
	opts    SyncOptions

	mu     sync.RWMutex
	active map[string]*activeRun // run id -> run
	wg     sync.WaitGroup
}

type activeRun struct {
	ID        string
	Job       string
	StartedAt time.Time
	Cancel    context.CancelFunc
	Done      chan struct{}
}

// ActiveRun describes a background run that has not finished yet.
type ActiveRun struct {
	ID        string    `json:"runId"`
	Job       string    `json:"job"`
	StartedAt time.Time `json:"startedAt"`
}

// NewService creates a Service. store and limiter must not be nil.
func NewService(table TableClient, sources SourceFactory, store ReportStore, limiter *RunLimiter, opts SyncOptions) *Service {
	return &Service{
		table:   table,
		sources: sources,
		store:   store,
		limiter: limiter,
		opts:    opts,
		active:  make(map[string]*activeRun),
	}
}

// ListJobs returns information about all registered jobs.
func (s *Service) ListJobs() []JobInfo {
	defs := All()
	infos := make([]JobInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// ListJobsByGroup returns jobs organized by group.
func (s *Service) ListJobsByGroup() map[string][]JobInfo {
	result := make(map[string][]JobInfo)
	for _, group := range Groups() {
		for _, def := range ByGroup(group) {
			result[group] = append(result[group], def.Info)
		}
	}
	return result
}

// Limiter exposes the run limiter for status endpoints.
func (s *Service) Limiter() *RunLimiter { return s.limiter }

// RunJob runs one job synchronously and stores its report. It waits up to
// the limiter's wait time for a free slot.
func (s *Service) RunJob(ctx context.Context, key string) (*SyncReport, error) {
	def, err := Lookup(key)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer s.limiter.Release(key)

	return s.execute(ctx, uuid.New().String(), def)
}

// StartJob begins a run in the background and returns its id at once.
// It fails with ErrRunInProgress when no slot is free.
func (s *Service) StartJob(ctx context.Context, key string) (string, error) {
	def, err := Lookup(key)
	if err != nil {
		return "", err
	}
	if !s.limiter.TryAcquire(key) {
		return "", ErrRunInProgress
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	runCtx = ContextWithTrigger(runCtx, TriggerFromContext(ctx))

	run := &activeRun{
		ID:        runID,
		Job:       key,
		StartedAt: time.Now(),
		Cancel:    cancel,
		Done:      make(chan struct{}),
	}
	s.mu.Lock()
	s.active[runID] = run
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(run.Done)
		defer cancel()
		defer s.limiter.Release(key)
		defer func() {
			s.mu.Lock()
			delete(s.active, runID)
			s.mu.Unlock()
		}()

		// errors are already logged and stored with the report
		_, _ = s.execute(runCtx, runID, def)
	}()

	return runID, nil
}

// CancelRun cancels a background run.
func (s *Service) CancelRun(runID string) error {
	s.mu.RLock()
	run, ok := s.active[runID]
	s.mu.RUnlock()
	if !ok {
		return ErrRunNotFound
	}
	run.Cancel()
	return nil
}

// ActiveRuns lists background runs still in progress.
func (s *Service) ActiveRuns() []ActiveRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ActiveRun, 0, len(s.active))
	for _, r := range s.active {
		out = append(out, ActiveRun{ID: r.ID, Job: r.Job, StartedAt: r.StartedAt})
	}
	return out
}

// Wait blocks until every background run has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecentRuns returns the newest stored reports, optionally for one job.
func (s *Service) RecentRuns(ctx context.Context, job string, limit int) ([]SyncReport, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListRuns(ctx, job, limit)
}

// Run returns one stored report.
func (s *Service) Run(ctx context.Context, runID string) (*SyncReport, error) {
	return s.store.GetRun(ctx, runID)
}

// Headers resolves the header row of a job's sheet without syncing.
func (s *Service) Headers(ctx context.Context, key string) (*HeaderMap, error) {
	def, err := Lookup(key)
	if err != nil {
		return nil, err
	}
	return NewSyncer(nil, s.table, s.opts).ResolveHeader(ctx, def)
}

func (s *Service) execute(ctx context.Context, runID string, def JobDefinition) (*SyncReport, error) {
	ctx = logging.ContextWithRunID(ctx, runID)
	logger := logging.WithFields(ctx, "job", def.Info.Key)

	src, err := s.sources(def)
	if err != nil {
		err = fmt.Errorf("build source for %s: %w", def.Info.Key, err)
		now := time.Now()
		report := &SyncReport{
			RunID:      runID,
			Job:        def.Info.Key,
			Sheet:      def.Sheet,
			Trigger:    TriggerFromContext(ctx),
			Status:     RunFailed,
			StartedAt:  now,
			FinishedAt: now,
			Error:      err.Error(),
		}
		s.save(ctx, report)
		return report, err
	}

	logger.Info("sync started", "trigger", TriggerFromContext(ctx))
	report, err := NewSyncer(src, s.table, s.opts).Run(ctx, def)
	s.save(ctx, report)
	return report, err
}

// save stores report with a context that outlives a cancelled run.
func (s *Service) save(ctx context.Context, report *SyncReport) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.SaveRun(saveCtx, report); err != nil {
		logging.FromContext(ctx).Error("failed to save run report", "error", err)
	}
}
