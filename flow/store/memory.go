package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dagrun/dagrun/flow"
)

// MemoryStore is an in-memory flow.Store.
//
// It keeps every run in a map guarded by a RWMutex and defensively clones
// on both write and read, so callers can never observe a half-applied
// update through a shared pointer. State is lost when the process exits.
//
// Designed for tests, examples, and single-process deployments that do not
// need durability.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*flow.Execution
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*flow.Execution)}
}

// CreateRun inserts the initial state of a new run. It fails with ErrExists
// if the id is already present.
func (s *MemoryStore) CreateRun(ctx context.Context, run *flow.Execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := run.Clone()
	if err != nil {
		return fmt.Errorf("clone run %s: %w", run.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s: %w", run.ID, ErrExists)
	}
	s.runs[run.ID] = snap
	return nil
}

// SaveRun replaces the stored state of an existing run.
func (s *MemoryStore) SaveRun(ctx context.Context, run *flow.Execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := run.Clone()
	if err != nil {
		return fmt.Errorf("clone run %s: %w", run.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	s.runs[run.ID] = snap
	return nil
}

// GetRun retrieves a run by id. The returned Execution is a private copy.
func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*flow.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run.Clone()
}

// ListRuns returns the ids of all stored runs in sorted order.
func (s *MemoryStore) ListRuns(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids, nil
}

// DeleteRun removes a run's stored state. Deleting an unknown id is a
// no-op.
func (s *MemoryStore) DeleteRun(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.runs, runID)
	s.mu.Unlock()
	return nil
}
