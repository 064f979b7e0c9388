// Package template provides a registry of reusable workflow shapes. A
// template captures a graph pattern (a sequence, a fan-out, an approval
// gate) behind a small parameter list, so callers get a validated
// Definition without hand-assembling nodes and edges.
package template

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dagrun/dagrun/flow"
)

// Param describes one template parameter. A required parameter with no
// default must be supplied at Instantiate time.
type Param struct {
	Name        string
	Description string
	Required    bool
	Default     any
}

// Template is a named, parameterized workflow shape. Build receives the
// merged parameters (caller values over defaults) and must return a
// definition that passes validation, which it gets for free by going
// through the Builder.
type Template struct {
	Name        string
	Category    string
	Description string
	Params      []Param
	Build       func(params map[string]any) (*flow.Definition, error)
}

// Registry holds templates by name. The zero value is not usable; create
// one with NewRegistry or Builtin.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// Builtin creates a registry pre-loaded with the built-in templates:
// sequence, fan-out-collect, approval-gate, and retry-poll.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(sequenceTemplate())
	r.Register(fanOutCollectTemplate())
	r.Register(approvalGateTemplate())
	r.Register(retryPollTemplate())
	return r
}

// Register adds or replaces a template under its name.
func (r *Registry) Register(t Template) {
	r.mu.Lock()
	r.templates[t.Name] = t
	r.mu.Unlock()
}

// Get retrieves a template by name.
func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()
	return t, ok
}

// List returns all registered templates sorted by name.
func (r *Registry) List() []Template {
	r.mu.RLock()
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByCategory returns the templates in one category sorted by name.
func (r *Registry) ByCategory(category string) []Template {
	var out []Template
	for _, t := range r.List() {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// Instantiate builds a definition from a named template. Callers supply
// parameter values; declared defaults fill the gaps, and a required
// parameter that remains unset fails with an ErrMissingParameter error.
func (r *Registry) Instantiate(name string, params map[string]any) (*flow.Definition, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, &flow.Error{
			Kind:    flow.ErrTemplateNotFound,
			Message: fmt.Sprintf("template %q not registered", name),
		}
	}

	merged := make(map[string]any, len(t.Params))
	for _, p := range t.Params {
		if v, ok := params[p.Name]; ok {
			merged[p.Name] = v
			continue
		}
		if p.Default != nil {
			merged[p.Name] = p.Default
			continue
		}
		if p.Required {
			return nil, &flow.Error{
				Kind:    flow.ErrMissingParameter,
				Message: fmt.Sprintf("template %q: required parameter %q not supplied", name, p.Name),
			}
		}
	}
	// Pass through extra caller parameters the template did not declare.
	for k, v := range params {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}

	return t.Build(merged)
}
