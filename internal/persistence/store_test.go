package persistence_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/halcyon-foundry/autarch/internal/goal"
	"github.com/halcyon-foundry/autarch/internal/memory"
	"github.com/halcyon-foundry/autarch/internal/persistence"
)

func openStore(t *testing.T, path string) *persistence.Store {
	t.Helper()
	s, err := persistence.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "autarch.db"))
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if err := s.Set(ctx, "settings", "profile", payload{Name: "default", Count: 3}); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got payload
	ok, err := s.Get(ctx, "settings", "profile", &got)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Name != "default" || got.Count != 3 {
		t.Fatalf("got = %+v", got)
	}

	// Overwrite.
	if err := s.Set(ctx, "settings", "profile", payload{Name: "alt", Count: 9}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := s.Get(ctx, "settings", "profile", &got); err != nil || got.Name != "alt" {
		t.Fatalf("after overwrite: %+v, err=%v", got, err)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "autarch.db"))

	var out string
	ok, err := s.Get(context.Background(), "settings", "absent", &out)
	if err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
}

func TestRemoveAndList(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "autarch.db"))
	ctx := context.Background()

	for _, key := range []string{"zeta", "alpha", "mid"} {
		if err := s.Set(ctx, "ns", key, key); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := s.Set(ctx, "other", "elsewhere", 1); err != nil {
		t.Fatalf("set other ns: %v", err)
	}

	keys, err := s.List(ctx, "ns")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 3 || keys[0] != "alpha" || keys[2] != "zeta" {
		t.Fatalf("keys = %v", keys)
	}

	if err := s.Remove(ctx, "ns", "mid"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, "ns", "never-there"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	if keys, _ = s.List(ctx, "ns"); len(keys) != 2 {
		t.Fatalf("keys after remove = %v", keys)
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autarch.db")
	ctx := context.Background()

	s, err := persistence.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set(ctx, "ns", "k", 42); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2 := openStore(t, path)
	var got int
	ok, err := s2.Get(ctx, "ns", "k", &got)
	if err != nil || !ok || got != 42 {
		t.Fatalf("after reopen: ok=%v got=%d err=%v", ok, got, err)
	}
}

func TestMemorySnapshotRoundTrip(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "autarch.db"))
	ctx := context.Background()

	if _, ok, err := s.LoadMemory(ctx); err != nil || ok {
		t.Fatalf("empty load: ok=%v err=%v", ok, err)
	}

	stm := memory.NewShortTerm()
	stm.RecordCommand("ping", "ok")
	stm.RecordKernelError("boom", nil)
	if err := s.SaveMemory(ctx, stm.Snapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap, ok, err := s.LoadMemory(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(snap.Commands) != 1 || snap.Commands[0].Command != "ping" {
		t.Fatalf("commands = %+v", snap.Commands)
	}
	if snap.LastKernelError == nil || snap.LastKernelError.Message != "boom" {
		t.Fatalf("last error = %+v", snap.LastKernelError)
	}
}

func TestGoalsRoundTrip(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "autarch.db"))
	ctx := context.Background()

	goals := []goal.Goal{
		{ID: "g1", Title: "steady state", Status: goal.StatusActive, TaskIDs: []string{"t1"}},
		{ID: "g2", Title: "archive sweep", Status: goal.StatusPending},
	}
	if err := s.SaveGoals(ctx, goals); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := s.LoadGoals(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0].ID != "g1" || len(got[0].TaskIDs) != 1 {
		t.Fatalf("goals = %+v", got)
	}
}
