package flow

import (
	"errors"
	"testing"
	"time"
)

func TestBuilderBuildsValidDefinition(t *testing.T) {
	def, err := NewBuilder("greeting", "Greeting").
		Describe("Say hello").
		Meta("owner", "platform").
		Node("start", KindStart, nil).
		Node("greet", KindAgentExecute, map[string]any{"task": "greet the user"},
			WithRetry(RetryPolicy{MaxAttempts: 3, Backoff: BackoffFixed, BaseDelay: time.Millisecond}),
			WithTimeout(time.Second),
			WithLabel("Greeter")).
		Node("done", KindEnd, nil).
		Edge("start", "greet").
		Edge("greet", "done").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if def.Description != "Say hello" {
		t.Errorf("Description = %q", def.Description)
	}
	if def.Metadata["owner"] != "platform" {
		t.Errorf("Metadata[owner] = %v", def.Metadata["owner"])
	}
	greet := def.Nodes["greet"]
	if greet.Label != "Greeter" {
		t.Errorf("Label = %q, want Greeter", greet.Label)
	}
	if greet.Timeout != time.Second {
		t.Errorf("Timeout = %v, want 1s", greet.Timeout)
	}
	if greet.Retry == nil || greet.Retry.MaxAttempts != 3 {
		t.Errorf("Retry = %+v, want MaxAttempts 3", greet.Retry)
	}
}

func TestBuilderAccumulatesViolations(t *testing.T) {
	_, err := NewBuilder("bad", "Bad").
		Node("", KindStart, nil).
		Node("dup", KindEnd, nil).
		Node("dup", KindEnd, nil).
		Edge("", "dup").
		Build()
	if err == nil {
		t.Fatal("Build() expected error")
	}

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("Build() error type = %T, want *Error", err)
	}
	if fe.Kind != ErrInvalidDefinition {
		t.Errorf("Kind = %v, want ErrInvalidDefinition", fe.Kind)
	}
	// Empty node id, duplicate node, empty edge endpoint, plus topology
	// problems; at least the three construction violations must be there.
	if len(fe.Violations) < 3 {
		t.Errorf("Violations = %v, want at least 3", fe.Violations)
	}
}

func TestBuilderEdgeIfGuardsBranches(t *testing.T) {
	def, err := NewBuilder("branching", "Branching").
		Node("start", KindStart, nil).
		Node("check", KindCondition, nil).
		Node("high", KindEnd, nil).
		Node("low", KindEnd, nil).
		Edge("start", "check").
		EdgeIf("check", "high", "x > 5").
		EdgeIf("check", "low", "").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if def.Edges[1].Condition != "x > 5" {
		t.Errorf("Edges[1].Condition = %q", def.Edges[1].Condition)
	}
	if def.Edges[2].Condition != "" {
		t.Errorf("Edges[2].Condition = %q, want else branch", def.Edges[2].Condition)
	}
}

func TestBuilderResultIsIsolated(t *testing.T) {
	b := NewBuilder("iso", "Isolated").
		Node("start", KindStart, nil).
		Node("end", KindEnd, nil).
		Edge("start", "end")

	def, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	// Further builder mutation must not leak into the built definition.
	b.Node("extra", KindAgentExecute, map[string]any{"task": "t"}).Edge("end", "extra")
	if len(def.Nodes) != 2 {
		t.Errorf("Nodes = %d, want 2", len(def.Nodes))
	}
	if len(def.Edges) != 1 {
		t.Errorf("Edges = %d, want 1", len(def.Edges))
	}
}
