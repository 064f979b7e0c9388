package exec

import (
	"strings"
	"testing"

	"github.com/dagrun/dagrun/flow"
)

func TestBuildTaskPrompt(t *testing.T) {
	t.Run("task plus sorted vars", func(t *testing.T) {
		node := flow.Node{ID: "n1", Config: map[string]any{"task": "summarize the report"}}
		prompt, err := buildTaskPrompt(node, map[string]any{"b": 2, "a": 1})
		if err != nil {
			t.Fatalf("buildTaskPrompt() error: %v", err)
		}
		if !strings.HasPrefix(prompt, "summarize the report") {
			t.Errorf("prompt should start with the task, got %q", prompt)
		}
		if strings.Index(prompt, "a: 1") > strings.Index(prompt, "b: 2") {
			t.Error("vars should render in sorted key order")
		}
	})

	t.Run("output format appended", func(t *testing.T) {
		node := flow.Node{ID: "n1", Config: map[string]any{"task": "classify", "output_format": "JSON"}}
		prompt, err := buildTaskPrompt(node, nil)
		if err != nil {
			t.Fatalf("buildTaskPrompt() error: %v", err)
		}
		if !strings.Contains(prompt, "Respond with JSON") {
			t.Errorf("prompt missing output format instruction: %q", prompt)
		}
	})

	t.Run("missing task", func(t *testing.T) {
		node := flow.Node{ID: "n1", Config: map[string]any{}}
		if _, err := buildTaskPrompt(node, nil); err == nil {
			t.Fatal("expected error for missing task")
		}
	})
}

func TestParseTaskResult(t *testing.T) {
	tests := []struct {
		name string
		text string
		want any
	}{
		{"plain text trimmed", "  hello  \n", "hello"},
		{"json object decoded", `{"score": 0.9}`, map[string]any{"score": 0.9}},
		{"invalid json kept as text", "{not json", "{not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTaskResult(tt.text)
			switch want := tt.want.(type) {
			case string:
				if got != want {
					t.Errorf("parseTaskResult(%q) = %v, want %v", tt.text, got, want)
				}
			case map[string]any:
				m, ok := got.(map[string]any)
				if !ok || m["score"] != want["score"] {
					t.Errorf("parseTaskResult(%q) = %v, want %v", tt.text, got, want)
				}
			}
		})
	}
}
