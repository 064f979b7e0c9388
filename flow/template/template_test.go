package template

import (
	"testing"

	"github.com/dagrun/dagrun/flow"
)

func TestRegistryInstantiate(t *testing.T) {
	r := Builtin()

	t.Run("unknown template", func(t *testing.T) {
		_, err := r.Instantiate("nope", nil)
		if flow.KindOf(err) != flow.ErrTemplateNotFound {
			t.Errorf("error kind = %v, want ErrTemplateNotFound", flow.KindOf(err))
		}
	})

	t.Run("missing required parameter", func(t *testing.T) {
		_, err := r.Instantiate("sequence", nil)
		if flow.KindOf(err) != flow.ErrMissingParameter {
			t.Errorf("error kind = %v, want ErrMissingParameter", flow.KindOf(err))
		}
	})

	t.Run("defaults apply", func(t *testing.T) {
		def, err := r.Instantiate("sequence", map[string]any{"tasks": []string{"one"}})
		if err != nil {
			t.Fatalf("Instantiate() error: %v", err)
		}
		if def.ID != "sequence" {
			t.Errorf("definition id = %q, want default sequence", def.ID)
		}
	})
}

func TestRegistryDiscovery(t *testing.T) {
	r := Builtin()

	names := make([]string, 0)
	for _, tmpl := range r.List() {
		names = append(names, tmpl.Name)
	}
	want := []string{"approval-gate", "fan-out-collect", "retry-poll", "sequence"}
	if len(names) != len(want) {
		t.Fatalf("List() returned %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	parallel := r.ByCategory("parallel")
	if len(parallel) != 1 || parallel[0].Name != "fan-out-collect" {
		t.Errorf("ByCategory(parallel) = %v, want [fan-out-collect]", parallel)
	}
}

func TestSequenceTemplate(t *testing.T) {
	def, err := Builtin().Instantiate("sequence", map[string]any{
		"id":    "pipeline",
		"tasks": []string{"draft", "edit", "summarize"},
	})
	if err != nil {
		t.Fatalf("Instantiate() error: %v", err)
	}

	// START + 3 steps + END.
	if len(def.Nodes) != 5 {
		t.Errorf("node count = %d, want 5", len(def.Nodes))
	}
	if def.Nodes["step2"].Kind != flow.KindAgentExecute {
		t.Errorf("step2 kind = %v, want AGENT_EXECUTE", def.Nodes["step2"].Kind)
	}
	if got := def.Nodes["step2"].Config["task"]; got != "edit" {
		t.Errorf("step2 task = %v, want edit", got)
	}
	if violations := flow.Validate(def); len(violations) != 0 {
		t.Errorf("Validate() = %v, want none", violations)
	}
}

func TestFanOutCollectTemplate(t *testing.T) {
	def, err := Builtin().Instantiate("fan-out-collect", map[string]any{
		"tasks":            []any{"a", "b"},
		"tolerate_partial": true,
	})
	if err != nil {
		t.Fatalf("Instantiate() error: %v", err)
	}

	if def.Nodes["fan_out"].Kind != flow.KindParallel {
		t.Errorf("fan_out kind = %v, want PARALLEL", def.Nodes["fan_out"].Kind)
	}
	if def.Nodes["collect"].Config["tolerate_partial"] != true {
		t.Error("collect should carry tolerate_partial=true")
	}
	if def.Nodes["worker1"].Config["output_key"] != "worker1_result" {
		t.Errorf("worker1 output_key = %v", def.Nodes["worker1"].Config["output_key"])
	}
	if violations := flow.Validate(def); len(violations) != 0 {
		t.Errorf("Validate() = %v, want none", violations)
	}
}

func TestApprovalGateTemplate(t *testing.T) {
	def, err := Builtin().Instantiate("approval-gate", map[string]any{
		"task": "write the announcement",
	})
	if err != nil {
		t.Fatalf("Instantiate() error: %v", err)
	}

	if def.Nodes["review"].Kind != flow.KindHumanApproval {
		t.Errorf("review kind = %v, want HUMAN_APPROVAL", def.Nodes["review"].Kind)
	}
	if violations := flow.Validate(def); len(violations) != 0 {
		t.Errorf("Validate() = %v, want none", violations)
	}
}

func TestRetryPollTemplate(t *testing.T) {
	def, err := Builtin().Instantiate("retry-poll", map[string]any{
		"task":      "check job status",
		"while":     `poll.status != "ready"`,
		"max_polls": 3,
	})
	if err != nil {
		t.Fatalf("Instantiate() error: %v", err)
	}

	loop := def.Nodes["again"]
	if loop.Kind != flow.KindLoop {
		t.Fatalf("again kind = %v, want LOOP", loop.Kind)
	}
	if loop.Config["max_iterations"] != 3 {
		t.Errorf("max_iterations = %v, want 3", loop.Config["max_iterations"])
	}
	if loop.Config["body"] != "poll" {
		t.Errorf("body = %v, want poll", loop.Config["body"])
	}
	if violations := flow.Validate(def); len(violations) != 0 {
		t.Errorf("Validate() = %v, want none", violations)
	}
}
