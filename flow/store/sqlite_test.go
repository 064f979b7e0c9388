package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dagrun/dagrun/flow"
	"github.com/dagrun/dagrun/flow/store"
)

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	t.Run("create and get round trip", func(t *testing.T) {
		run := sampleRun("r1")
		run.FailedNode = "work"
		run.LastError = "boom"
		if err := s.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun() error: %v", err)
		}

		got, err := s.GetRun(ctx, "r1")
		if err != nil {
			t.Fatalf("GetRun() error: %v", err)
		}
		if got.DefinitionID != "def-1" || got.Status != flow.RunRunning {
			t.Errorf("got %s/%s, want def-1/RUNNING", got.DefinitionID, got.Status)
		}
		if got.Vars["count"] != float64(3) {
			t.Errorf("count = %v, want 3", got.Vars["count"])
		}
		if got.Nodes["work"].Attempts != 2 {
			t.Errorf("work attempts = %d, want 2", got.Nodes["work"].Attempts)
		}
		if got.FailedNode != "work" || got.LastError != "boom" {
			t.Errorf("failure fields = %s/%s, want work/boom", got.FailedNode, got.LastError)
		}
	})

	t.Run("duplicate create fails", func(t *testing.T) {
		if err := s.CreateRun(ctx, sampleRun("r1")); err == nil {
			t.Error("CreateRun() with duplicate id should fail")
		}
	})

	t.Run("save updates status column and state", func(t *testing.T) {
		run := sampleRun("r1")
		run.Status = flow.RunFailed
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun() error: %v", err)
		}
		got, err := s.GetRun(ctx, "r1")
		if err != nil {
			t.Fatalf("GetRun() error: %v", err)
		}
		if got.Status != flow.RunFailed {
			t.Errorf("Status = %v, want FAILED", got.Status)
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

	t.Run("list and delete", func(t *testing.T) {
		if err := s.CreateRun(ctx, sampleRun("r0")); err != nil {
			t.Fatalf("CreateRun() error: %v", err)
		}
		ids, err := s.ListRuns(ctx)
		if err != nil {
			t.Fatalf("ListRuns() error: %v", err)
		}
		if len(ids) != 2 || ids[0] != "r0" || ids[1] != "r1" {
			t.Errorf("ListRuns() = %v, want [r0 r1]", ids)
		}

		if err := s.DeleteRun(ctx, "r0"); err != nil {
			t.Fatalf("DeleteRun() error: %v", err)
		}
		if _, err := s.GetRun(ctx, "r0"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("error after delete = %v, want ErrNotFound", err)
		}
		if err := s.DeleteRun(ctx, "r0"); err != nil {
			t.Errorf("second DeleteRun() error: %v", err)
		}
	})
}

func TestSQLiteStoreBacksEngine(t *testing.T) {
	s := newSQLiteStore(t)
	eng := flow.NewEngine(s, nil)

	def, err := flow.NewBuilder("persisted", "Persisted").
		Node("start", flow.KindStart, nil).
		Node("wait", flow.KindDelay, map[string]any{"duration": "1ms"}).
		Node("end", flow.KindEnd, nil).
		Edge("start", "wait").
		Edge("wait", "end").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	run, err := eng.Run(context.Background(), "persist-1", def, map[string]any{"seed": "x"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if run.Status != flow.RunSucceeded {
		t.Fatalf("Status = %v, want SUCCEEDED", run.Status)
	}

	got, err := s.GetRun(context.Background(), "persist-1")
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if got.Status != flow.RunSucceeded {
		t.Errorf("stored status = %v, want SUCCEEDED", got.Status)
	}
	if got.Vars["seed"] != "x" {
		t.Errorf("seed = %v, want x", got.Vars["seed"])
	}
	for id, ns := range got.Nodes {
		if ns.Status != flow.NodeSucceeded {
			t.Errorf("node %s = %v, want SUCCEEDED", id, ns.Status)
		}
	}
}
