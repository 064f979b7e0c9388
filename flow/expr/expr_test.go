package expr

import "testing"

func TestEvaluate(t *testing.T) {
	vars := map[string]any{
		"x":      10,
		"name":   "alice",
		"ready":  true,
		"empty":  "",
		"score":  0.75,
		"result": map[string]any{"score": 0.9, "label": "ok"},
	}

	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"numeric greater", "x > 5", true},
		{"numeric less", "x < 5", false},
		{"numeric equal", "x == 10", true},
		{"numeric not equal", "x != 10", false},
		{"float comparison", "score >= 0.75", true},
		{"string equality", `name == "alice"`, true},
		{"string inequality", `name != "bob"`, true},
		{"bool literal true", "true", true},
		{"bool literal false", "false", false},
		{"bool variable", "ready", true},
		{"negation", "!ready", false},
		{"and both true", "x > 5 && ready", true},
		{"and one false", "x > 5 && !ready", false},
		{"or short circuit", "x > 100 || ready", true},
		{"parentheses", "(x > 100 || x < 20) && ready", true},
		{"dot path", "result.score > 0.8", true},
		{"dot path string", `result.label == "ok"`, true},
		{"missing variable is falsy", "missing", false},
		{"missing variable equals nil ordering", "missing < 1", true},
		{"empty string is falsy", "empty", false},
		{"negative literal", "x > -5", true},
		{"empty expression", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.src, vars)
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.src, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unterminated string", `name == "alice`},
		{"dangling operator", "x >"},
		{"unbalanced paren", "(x > 5"},
		{"stray character", "x > 5 @"},
		{"trailing token", "x > 5 6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Evaluate(tt.src, map[string]any{"x": 1}); err == nil {
				t.Errorf("Evaluate(%q) expected error, got nil", tt.src)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	vars := map[string]any{
		"a": map[string]any{"b": map[string]any{"c": 42}},
		"s": "flat",
	}

	if got := Lookup("a.b.c", vars); got != 42 {
		t.Errorf("Lookup(a.b.c) = %v, want 42", got)
	}
	if got := Lookup("s", vars); got != "flat" {
		t.Errorf("Lookup(s) = %v, want flat", got)
	}
	if got := Lookup("a.missing", vars); got != nil {
		t.Errorf("Lookup(a.missing) = %v, want nil", got)
	}
	if got := Lookup("s.into", vars); got != nil {
		t.Errorf("Lookup through scalar = %v, want nil", got)
	}
}
