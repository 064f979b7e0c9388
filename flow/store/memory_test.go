package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dagrun/dagrun/flow"
	"github.com/dagrun/dagrun/flow/store"
)

func sampleRun(id string) *flow.Execution {
	return &flow.Execution{
		ID:           id,
		DefinitionID: "def-1",
		Status:       flow.RunRunning,
		Vars:         map[string]any{"count": float64(3)},
		Nodes: map[string]*flow.NodeState{
			"start": {Status: flow.NodeSucceeded},
			"work":  {Status: flow.NodeRunning, Attempts: 2},
		},
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	t.Run("create and get", func(t *testing.T) {
		if err := s.CreateRun(ctx, sampleRun("r1")); err != nil {
			t.Fatalf("CreateRun() error: %v", err)
		}
		got, err := s.GetRun(ctx, "r1")
		if err != nil {
			t.Fatalf("GetRun() error: %v", err)
		}
		if got.DefinitionID != "def-1" || got.Status != flow.RunRunning {
			t.Errorf("got %+v, want def-1/RUNNING", got)
		}
		if got.Nodes["work"].Attempts != 2 {
			t.Errorf("work attempts = %d, want 2", got.Nodes["work"].Attempts)
		}
	})

	t.Run("duplicate create fails", func(t *testing.T) {
		err := s.CreateRun(ctx, sampleRun("r1"))
		if !errors.Is(err, store.ErrExists) {
			t.Errorf("error = %v, want ErrExists", err)
		}
	})

	t.Run("save updates", func(t *testing.T) {
		run := sampleRun("r1")
		run.Status = flow.RunSucceeded
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun() error: %v", err)
		}
		got, err := s.GetRun(ctx, "r1")
		if err != nil {
			t.Fatalf("GetRun() error: %v", err)
		}
		if got.Status != flow.RunSucceeded {
			t.Errorf("Status = %v, want SUCCEEDED", got.Status)
		}
	})

	t.Run("save unknown fails", func(t *testing.T) {
		if err := s.SaveRun(ctx, sampleRun("ghost")); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("get unknown fails", func(t *testing.T) {
		if _, err := s.GetRun(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list is sorted", func(t *testing.T) {
		for _, id := range []string{"r3", "r2"} {
			if err := s.CreateRun(ctx, sampleRun(id)); err != nil {
				t.Fatalf("CreateRun(%s) error: %v", id, err)
			}
		}
		ids, err := s.ListRuns(ctx)
		if err != nil {
			t.Fatalf("ListRuns() error: %v", err)
		}
		want := []string{"r1", "r2", "r3"}
		if len(ids) != len(want) {
			t.Fatalf("ListRuns() = %v, want %v", ids, want)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
			}
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.DeleteRun(ctx, "r2"); err != nil {
			t.Fatalf("DeleteRun() error: %v", err)
		}
		if _, err := s.GetRun(ctx, "r2"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("error after delete = %v, want ErrNotFound", err)
		}
		// Deleting an unknown id is a no-op.
		if err := s.DeleteRun(ctx, "r2"); err != nil {
			t.Errorf("second DeleteRun() error: %v", err)
		}
	})
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	run := sampleRun("r1")
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}

	// Mutating the caller's copy after storing must not leak in.
	run.Vars["count"] = float64(99)
	run.Nodes["work"].Status = flow.NodeFailed

	got, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if got.Vars["count"] != float64(3) {
		t.Errorf("count = %v, want 3 (stored copy mutated through caller)", got.Vars["count"])
	}
	if got.Nodes["work"].Status != flow.NodeRunning {
		t.Errorf("work status = %v, want RUNNING", got.Nodes["work"].Status)
	}

	// And mutating a retrieved copy must not change the store.
	got.Vars["count"] = float64(7)
	again, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if again.Vars["count"] != float64(3) {
		t.Errorf("count = %v, want 3 (stored copy mutated through reader)", again.Vars["count"])
	}
}

func TestMemoryStoreContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := store.NewMemoryStore()
	if err := s.CreateRun(ctx, sampleRun("r1")); err == nil {
		t.Error("CreateRun() with cancelled context should fail")
	}
	if _, err := s.GetRun(ctx, "r1"); err == nil {
		t.Error("GetRun() with cancelled context should fail")
	}
}
