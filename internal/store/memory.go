// Package store persists sync run reports. Memory keeps them in process;
// Postgres writes them to the sync_runs and sync_mismatches tables.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// DefaultMemoryCapacity bounds how many reports Memory keeps.
const DefaultMemoryCapacity = 500

// Memory is a core.ReportStore that keeps the newest reports in memory.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	order    []string // run ids, oldest first
	runs     map[string]core.SyncReport
}

// NewMemory creates a store holding up to capacity reports.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity, runs: make(map[string]core.SyncReport)}
}

// SaveRun stores a copy of report, replacing an earlier one with the same id.
func (m *Memory) SaveRun(ctx context.Context, report *core.SyncReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[report.RunID]; !ok {
		m.order = append(m.order, report.RunID)
	}
	m.runs[report.RunID] = *report

	for len(m.order) > m.capacity {
		delete(m.runs, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

// ListRuns returns up to limit reports, newest first. An empty job matches
// every job.
func (m *Memory) ListRuns(ctx context.Context, job string, limit int) ([]core.SyncReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.SyncReport, 0, min(limit, len(m.runs)))
	for _, r := range m.runs {
		if job == "" || r.Job == job {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetRun returns one report or core.ErrRunNotFound.
func (m *Memory) GetRun(ctx context.Context, runID string) (*core.SyncReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, core.ErrRunNotFound
	}
	return &r, nil
}
