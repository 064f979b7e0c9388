package exec

import (
	"context"
	"errors"
	"testing"

	"github.com/dagrun/dagrun/flow"
)

func TestMockExecutorScripting(t *testing.T) {
	ctx := context.Background()
	node := flow.Node{ID: "task1", Kind: flow.KindAgentExecute}

	t.Run("returns scripted result", func(t *testing.T) {
		m := NewMockExecutor().Returns("task1", "hello")
		out, err := m.Execute(ctx, node, nil)
		if err != nil {
			t.Fatalf("Execute() error: %v", err)
		}
		if out != "hello" {
			t.Errorf("output = %v, want hello", out)
		}
	})

	t.Run("returns scripted error", func(t *testing.T) {
		scripted := errors.New("boom")
		m := NewMockExecutor().Fails("task1", scripted)
		if _, err := m.Execute(ctx, node, nil); !errors.Is(err, scripted) {
			t.Errorf("Execute() error = %v, want %v", err, scripted)
		}
	})

	t.Run("fails then succeeds", func(t *testing.T) {
		m := NewMockExecutor().FailsThenReturns("task1", 2, "done")
		for i := 0; i < 2; i++ {
			if _, err := m.Execute(ctx, node, nil); err == nil {
				t.Fatalf("attempt %d: expected failure", i+1)
			}
		}
		out, err := m.Execute(ctx, node, nil)
		if err != nil {
			t.Fatalf("third attempt error: %v", err)
		}
		if out != "done" {
			t.Errorf("output = %v, want done", out)
		}
		if m.Calls("task1") != 3 {
			t.Errorf("Calls() = %d, want 3", m.Calls("task1"))
		}
	})

	t.Run("unscripted node gets placeholder", func(t *testing.T) {
		m := NewMockExecutor()
		out, err := m.Execute(ctx, node, nil)
		if err != nil {
			t.Fatalf("Execute() error: %v", err)
		}
		result, ok := out.(map[string]any)
		if !ok || result["executed"] != "task1" {
			t.Errorf("output = %v, want placeholder for task1", out)
		}
	})

	t.Run("custom function sees vars", func(t *testing.T) {
		m := NewMockExecutor().Does("task1", func(_ context.Context, _ flow.Node, vars map[string]any) (any, error) {
			return vars["x"], nil
		})
		out, err := m.Execute(ctx, node, map[string]any{"x": 42})
		if err != nil {
			t.Fatalf("Execute() error: %v", err)
		}
		if out != 42 {
			t.Errorf("output = %v, want 42", out)
		}
	})
}

func TestMockCallerScripting(t *testing.T) {
	ctx := context.Background()

	t.Run("scripted response", func(t *testing.T) {
		m := NewMockCaller().Responds("svc", map[string]any{"ok": true})
		out, err := m.Call(ctx, "svc", nil)
		if err != nil {
			t.Fatalf("Call() error: %v", err)
		}
		if out["ok"] != true {
			t.Errorf("response = %v, want ok=true", out)
		}
	})

	t.Run("scripted error", func(t *testing.T) {
		scripted := errors.New("unreachable")
		m := NewMockCaller().Fails("svc", scripted)
		if _, err := m.Call(ctx, "svc", nil); !errors.Is(err, scripted) {
			t.Errorf("Call() error = %v, want %v", err, scripted)
		}
	})

	t.Run("unscripted target echoes payload", func(t *testing.T) {
		m := NewMockCaller()
		out, err := m.Call(ctx, "svc", map[string]any{"a": 1})
		if err != nil {
			t.Fatalf("Call() error: %v", err)
		}
		if out["target"] != "svc" {
			t.Errorf("target = %v, want svc", out["target"])
		}
		if m.Calls("svc") != 1 {
			t.Errorf("Calls() = %d, want 1", m.Calls("svc"))
		}
	})
}
