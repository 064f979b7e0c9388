package flow

import (
	"fmt"
	"sort"
	"time"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Export serializes a definition into a tree of plain objects, arrays, and
// scalars, suitable for either textual encoding. Nodes are emitted sorted by
// id so the output is stable; edges keep their declaration order, which is
// semantically significant for CONDITION branching.
func Export(def *Definition) map[string]any {
	nodes := make([]any, 0, len(def.Nodes))
	ids := make([]string, 0, len(def.Nodes))
	for id := range def.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		nodes = append(nodes, exportNode(def.Nodes[id]))
	}

	edges := make([]any, 0, len(def.Edges))
	for _, e := range def.Edges {
		edge := map[string]any{"from": e.From, "to": e.To}
		if e.Condition != "" {
			edge["condition"] = e.Condition
		}
		edges = append(edges, edge)
	}

	tree := map[string]any{
		"id":    def.ID,
		"name":  def.Name,
		"nodes": nodes,
		"edges": edges,
	}
	if def.Description != "" {
		tree["description"] = def.Description
	}
	if len(def.Metadata) > 0 {
		tree["metadata"] = def.Metadata
	}
	return tree
}

func exportNode(n Node) map[string]any {
	out := map[string]any{
		"id":   n.ID,
		"kind": string(n.Kind),
	}
	if n.Label != "" {
		out["label"] = n.Label
	}
	if len(n.Config) > 0 {
		out["config"] = n.Config
	}
	if n.Timeout > 0 {
		out["timeout"] = n.Timeout.String()
	}
	if n.Retry != nil {
		retry := map[string]any{"max_attempts": n.Retry.MaxAttempts}
		if n.Retry.Backoff != "" {
			retry["backoff"] = string(n.Retry.Backoff)
		}
		if n.Retry.BaseDelay > 0 {
			retry["base_delay"] = n.Retry.BaseDelay.String()
		}
		if n.Retry.MaxDelay > 0 {
			retry["max_delay"] = n.Retry.MaxDelay.String()
		}
		out["retry"] = retry
	}
	return out
}

// Import is the inverse of Export. The produced definition is validated, so
// for every valid definition D, Import(Export(D)) succeeds and is
// structurally equal to D.
func Import(tree map[string]any) (*Definition, error) {
	def := &Definition{
		ID:          treeString(tree, "id"),
		Name:        treeString(tree, "name"),
		Description: treeString(tree, "description"),
		Nodes:       make(map[string]Node),
	}
	if meta, ok := tree["metadata"].(map[string]any); ok {
		def.Metadata = meta
	}

	nodes, ok := tree["nodes"].([]any)
	if !ok {
		return nil, &Error{Kind: ErrInvalidDefinition, Message: `tree missing "nodes" array`}
	}
	for i, raw := range nodes {
		nt, ok := raw.(map[string]any)
		if !ok {
			return nil, &Error{Kind: ErrInvalidDefinition, Message: fmt.Sprintf("nodes[%d] is not an object", i)}
		}
		n, err := importNode(nt)
		if err != nil {
			return nil, err
		}
		def.Nodes[n.ID] = n
	}

	if rawEdges, ok := tree["edges"].([]any); ok {
		for i, raw := range rawEdges {
			et, ok := raw.(map[string]any)
			if !ok {
				return nil, &Error{Kind: ErrInvalidDefinition, Message: fmt.Sprintf("edges[%d] is not an object", i)}
			}
			def.Edges = append(def.Edges, Edge{
				From:      treeString(et, "from"),
				To:        treeString(et, "to"),
				Condition: treeString(et, "condition"),
			})
		}
	}

	if violations := Validate(def); len(violations) > 0 {
		return nil, invalidDefinition(violations)
	}
	return def, nil
}

func importNode(tree map[string]any) (Node, error) {
	n := Node{
		ID:    treeString(tree, "id"),
		Kind:  NodeKind(treeString(tree, "kind")),
		Label: treeString(tree, "label"),
	}
	if cfg, ok := tree["config"].(map[string]any); ok {
		n.Config = cfg
	}
	if raw, ok := tree["timeout"]; ok {
		d, err := parseDuration(raw)
		if err != nil {
			return n, &Error{Kind: ErrInvalidDefinition, NodeID: n.ID, Message: "invalid timeout", Cause: err}
		}
		n.Timeout = d
	}
	if raw, ok := tree["retry"].(map[string]any); ok {
		rp, err := importRetry(raw)
		if err != nil {
			return n, &Error{Kind: ErrInvalidDefinition, NodeID: n.ID, Message: "invalid retry policy", Cause: err}
		}
		n.Retry = rp
	}
	return n, nil
}

func importRetry(tree map[string]any) (*RetryPolicy, error) {
	rp := &RetryPolicy{Backoff: Backoff(treeString(tree, "backoff"))}
	switch v := tree["max_attempts"].(type) {
	case int:
		rp.MaxAttempts = v
	case int64:
		rp.MaxAttempts = int(v)
	case float64:
		rp.MaxAttempts = int(v)
	default:
		return nil, fmt.Errorf("max_attempts missing or not a number")
	}
	for key, dst := range map[string]*time.Duration{"base_delay": &rp.BaseDelay, "max_delay": &rp.MaxDelay} {
		if raw, ok := tree[key]; ok {
			d, err := parseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return rp, nil
}

func treeString(tree map[string]any, key string) string {
	s, _ := tree[key].(string)
	return s
}

// MarshalJSON encodes a definition's exported tree as JSON.
func MarshalJSON(def *Definition) ([]byte, error) {
	return gojson.Marshal(Export(def))
}

// UnmarshalJSON decodes JSON produced by MarshalJSON (or written by hand)
// back into a validated definition.
func UnmarshalJSON(data []byte) (*Definition, error) {
	var tree map[string]any
	if err := gojson.Unmarshal(data, &tree); err != nil {
		return nil, &Error{Kind: ErrInvalidDefinition, Message: "invalid JSON", Cause: err}
	}
	return Import(tree)
}

// MarshalYAML encodes a definition's exported tree as YAML.
func MarshalYAML(def *Definition) ([]byte, error) {
	return yaml.Marshal(Export(def))
}

// UnmarshalYAML decodes YAML back into a validated definition.
func UnmarshalYAML(data []byte) (*Definition, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, &Error{Kind: ErrInvalidDefinition, Message: "invalid YAML", Cause: err}
	}
	return Import(normalizeTree(tree).(map[string]any))
}

// normalizeTree rewrites the map[any]any nesting some YAML decoders produce
// into the map[string]any shape Import expects.
func normalizeTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeTree(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeTree(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeTree(val)
		}
		return t
	}
	return v
}

// Equal reports structural equality of two definitions: same nodes, edges,
// and configuration. Comparison happens on the JSON-normalized exported
// trees so that numeric widening during decoding does not produce false
// negatives. This is the equality the round-trip law is stated in.
func Equal(a, b *Definition) bool {
	aj, err := gojson.Marshal(Export(a))
	if err != nil {
		return false
	}
	bj, err := gojson.Marshal(Export(b))
	if err != nil {
		return false
	}
	var at, bt any
	if err := gojson.Unmarshal(aj, &at); err != nil {
		return false
	}
	if err := gojson.Unmarshal(bj, &bt); err != nil {
		return false
	}
	return deepEqualTrees(at, bt)
}

func deepEqualTrees(a, b any) bool {
	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, ok := bt[k]
			if !ok || !deepEqualTrees(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !deepEqualTrees(at[i], bt[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
