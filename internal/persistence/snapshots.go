package persistence

import (
	"context"

	"github.com/halcyon-foundry/autarch/internal/goal"
	"github.com/halcyon-foundry/autarch/internal/memory"
)

// Namespaces for the caller-driven snapshots.
const (
	nsSnapshots = "snapshots"

	keyMemory = "short_term_memory"
	keyGoals  = "goals"
)

// SaveMemory persists a short-term memory snapshot.
func (s *Store) SaveMemory(ctx context.Context, snap memory.Snapshot) error {
	return s.Set(ctx, nsSnapshots, keyMemory, snap)
}

// LoadMemory restores the last persisted short-term memory snapshot. The
// second return is false when none was ever saved.
func (s *Store) LoadMemory(ctx context.Context) (memory.Snapshot, bool, error) {
	var snap memory.Snapshot
	ok, err := s.Get(ctx, nsSnapshots, keyMemory, &snap)
	return snap, ok, err
}

// SaveGoals persists the goal list.
func (s *Store) SaveGoals(ctx context.Context, goals []goal.Goal) error {
	return s.Set(ctx, nsSnapshots, keyGoals, goals)
}

// LoadGoals restores the last persisted goal list.
func (s *Store) LoadGoals(ctx context.Context) ([]goal.Goal, bool, error) {
	var goals []goal.Goal
	ok, err := s.Get(ctx, nsSnapshots, keyGoals, &goals)
	return goals, ok, err
}
