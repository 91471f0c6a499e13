package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/teamwork/workflow"
)

// InMemoryStore keeps snapshots in a process local map. It is safe for
// concurrent access; stored and returned states are cloned.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]workflow.Snapshot
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string][]workflow.Snapshot)}
}

// Append implements Store.
func (s *InMemoryStore) Append(_ context.Context, snap workflow.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[snap.RunID] = append(s.runs[snap.RunID], clone(snap))
	return nil
}

// Latest implements Store.
func (s *InMemoryStore) Latest(_ context.Context, runID string) (workflow.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.runs[runID]
	if len(snaps) == 0 {
		return workflow.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return clone(snaps[len(snaps)-1]), nil
}

// History implements Store.
func (s *InMemoryStore) History(_ context.Context, runID string) ([]workflow.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.runs[runID]
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	out := make([]workflow.Snapshot, len(snaps))
	for i, snap := range snaps {
		out[i] = clone(snap)
	}
	return out, nil
}

// Runs implements Store.
func (s *InMemoryStore) Runs(_ context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.runs))
	for _, snaps := range s.runs {
		out = append(out, summarize(snaps[0], snaps[len(snaps)-1]))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(snap workflow.Snapshot) workflow.Snapshot {
	snap.State = snap.State.Clone()
	return snap
}
