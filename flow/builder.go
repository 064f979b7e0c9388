package flow

import "time"

// Builder assembles a Definition incrementally. Construction problems (empty
// ids, duplicate nodes) accumulate alongside validation results and surface
// from Build as a single ErrInvalidDefinition error enumerating every
// violation, so a caller sees all problems at once.
//
// Example:
//
//	def, err := flow.NewBuilder("greeting", "Greeting").
//	    Node("start", flow.KindStart, nil).
//	    Node("greet", flow.KindAgentExecute, map[string]any{"task": "greet"}).
//	    Node("done", flow.KindEnd, nil).
//	    Edge("start", "greet").
//	    Edge("greet", "done").
//	    Build()
type Builder struct {
	def        Definition
	violations []Violation
}

// NewBuilder starts a definition with the given id and human name.
func NewBuilder(id, name string) *Builder {
	return &Builder{def: Definition{
		ID:    id,
		Name:  name,
		Nodes: make(map[string]Node),
	}}
}

// Describe sets the definition's description.
func (b *Builder) Describe(description string) *Builder {
	b.def.Description = description
	return b
}

// Meta attaches one metadata entry.
func (b *Builder) Meta(key string, value any) *Builder {
	if b.def.Metadata == nil {
		b.def.Metadata = make(map[string]any)
	}
	b.def.Metadata[key] = value
	return b
}

// Node adds a node with the given id, kind, and configuration. Use the
// NodeOption variants to attach a retry policy, timeout, or label.
func (b *Builder) Node(id string, kind NodeKind, config map[string]any, opts ...NodeOption) *Builder {
	if id == "" {
		b.violations = append(b.violations, Violation{Message: "node id cannot be empty"})
		return b
	}
	if _, exists := b.def.Nodes[id]; exists {
		b.violations = append(b.violations, Violation{Element: id, Message: "duplicate node id"})
		return b
	}
	n := Node{ID: id, Kind: kind, Config: config}
	for _, opt := range opts {
		opt(&n)
	}
	b.def.Nodes[id] = n
	return b
}

// NodeOption customizes a node added through Builder.Node.
type NodeOption func(*Node)

// WithRetry attaches a retry policy to the node.
func WithRetry(policy RetryPolicy) NodeOption {
	return func(n *Node) { n.Retry = &policy }
}

// WithTimeout sets a per-attempt timeout for the node.
func WithTimeout(d time.Duration) NodeOption {
	return func(n *Node) { n.Timeout = d }
}

// WithLabel sets the node's human-readable label.
func WithLabel(label string) NodeOption {
	return func(n *Node) { n.Label = label }
}

// Edge adds an unconditional edge between two node ids. Node existence is
// not checked here; Build validates the whole graph at once.
func (b *Builder) Edge(from, to string) *Builder {
	return b.EdgeIf(from, to, "")
}

// EdgeIf adds an edge guarded by a condition expression. Guards are only
// evaluated on edges leaving CONDITION nodes; elsewhere they are a
// validation error waiting to happen, so keep them on branches.
func (b *Builder) EdgeIf(from, to, condition string) *Builder {
	if from == "" || to == "" {
		b.violations = append(b.violations, Violation{
			Element: from + "->" + to,
			Message: "edge endpoints cannot be empty",
		})
		return b
	}
	b.def.Edges = append(b.def.Edges, Edge{From: from, To: to, Condition: condition})
	return b
}

// Build finalizes the definition. It runs Validate and fails with an
// ErrInvalidDefinition error listing every violation; on success the
// returned Definition is immutable and ready for the Engine.
func (b *Builder) Build() (*Definition, error) {
	violations := append([]Violation{}, b.violations...)
	violations = append(violations, Validate(&b.def)...)
	if len(violations) > 0 {
		return nil, invalidDefinition(violations)
	}

	def := b.def
	def.Nodes = make(map[string]Node, len(b.def.Nodes))
	for id, n := range b.def.Nodes {
		def.Nodes[id] = n
	}
	def.Edges = append([]Edge{}, b.def.Edges...)
	return &def, nil
}
