package flow

import (
	"fmt"
	"strings"

	"dario.cat/mergo"

	"github.com/dagrun/dagrun/flow/expr"
)

// DATA_TRANSFORM operations. Each reads named inputs from the shared
// variables, applies a pure transformation, and writes the result under the
// configured output name.
//
// Config keys:
//
//	op     - one of "set", "copy", "pick", "concat", "merge" (required)
//	output - destination variable name (required)
//	value  - literal to store (set)
//	input  - source variable path (copy, pick)
//	inputs - list of source variable paths (concat, merge)
//	sep    - separator string (concat, default "")
const (
	transformSet    = "set"
	transformCopy   = "copy"
	transformPick   = "pick"
	transformConcat = "concat"
	transformMerge  = "merge"
)

// applyTransform executes a DATA_TRANSFORM node against vars and returns the
// value written to the output variable. Pure apart from the single write.
func applyTransform(n Node, vars map[string]any) (any, error) {
	output := n.configString("output", "")
	fail := func(format string, args ...any) (any, error) {
		return nil, &Error{
			Kind:    ErrInvalidDefinition,
			NodeID:  n.ID,
			Message: fmt.Sprintf(format, args...),
		}
	}

	var result any
	switch op := n.configString("op", ""); op {
	case transformSet:
		v, ok := n.Config["value"]
		if !ok {
			return fail(`transform "set" requires a "value"`)
		}
		result = v

	case transformCopy, transformPick:
		input := n.configString("input", "")
		if input == "" {
			return fail(`transform %q requires an "input" path`, op)
		}
		result = expr.Lookup(input, vars)

	case transformConcat:
		inputs, err := transformInputs(n)
		if err != nil {
			return fail("%v", err)
		}
		sep := n.configString("sep", "")
		parts := make([]string, 0, len(inputs))
		for _, path := range inputs {
			parts = append(parts, fmt.Sprintf("%v", expr.Lookup(path, vars)))
		}
		result = strings.Join(parts, sep)

	case transformMerge:
		inputs, err := transformInputs(n)
		if err != nil {
			return fail("%v", err)
		}
		merged := map[string]any{}
		for _, path := range inputs {
			src, ok := expr.Lookup(path, vars).(map[string]any)
			if !ok {
				return fail("transform %q: input %q is not a map", transformMerge, path)
			}
			if err := mergo.Merge(&merged, src, mergo.WithOverride); err != nil {
				return fail("transform merge failed: %v", err)
			}
		}
		result = merged

	default:
		return fail("unknown transform op %q", op)
	}

	vars[output] = result
	return result, nil
}

// transformInputs reads the "inputs" list, accepting []string or the []any
// that JSON decoding produces.
func transformInputs(n Node) ([]string, error) {
	switch v := n.Config["inputs"].(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf(`"inputs" entries must be strings, got %T`, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf(`transform requires an "inputs" list`)
}

// validateTransform statically checks a DATA_TRANSFORM node's configuration,
// reporting every problem.
func validateTransform(n Node) []Violation {
	var out []Violation
	add := func(format string, args ...any) {
		out = append(out, Violation{Element: n.ID, Message: fmt.Sprintf(format, args...)})
	}

	if n.configString("output", "") == "" {
		add(`DATA_TRANSFORM "output" must be a non-empty string`)
	}
	switch op := n.configString("op", ""); op {
	case transformSet:
		if _, ok := n.Config["value"]; !ok {
			add(`transform "set" requires a "value"`)
		}
	case transformCopy, transformPick:
		if n.configString("input", "") == "" {
			add(`transform %q requires an "input" path`, op)
		}
	case transformConcat, transformMerge:
		if _, err := transformInputs(n); err != nil {
			add("%v", err)
		}
	case "":
		// missing op reported by the required-key check
	default:
		add("unknown transform op %q", op)
	}
	return out
}
