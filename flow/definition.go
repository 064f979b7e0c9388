// Package flow provides the workflow graph model and its execution engine.
//
// A workflow is described as a Definition: a directed graph of typed Nodes
// connected by Edges, where edges out of CONDITION nodes carry boolean guard
// expressions evaluated against the run's shared variables. Definitions are
// built with the Builder (or instantiated from the template package),
// validated with Validate, and executed with an Engine against a Store.
package flow

import "time"

// NodeKind identifies the execution semantics of a node. The set is closed;
// the engine dispatches on it exhaustively.
type NodeKind string

const (
	// KindStart is the single entry point of a definition. No-op.
	KindStart NodeKind = "START"
	// KindEnd terminates a branch; the first END reached marks the run
	// successful. No-op.
	KindEnd NodeKind = "END"
	// KindAgentSpawn delegates to the TaskExecutor to start an autonomous
	// worker for the configured task.
	KindAgentSpawn NodeKind = "AGENT_SPAWN"
	// KindAgentExecute delegates to the TaskExecutor and waits for the
	// result, merging it into the shared variables.
	KindAgentExecute NodeKind = "AGENT_EXECUTE"
	// KindCondition routes to the first outgoing edge whose guard holds.
	KindCondition NodeKind = "CONDITION"
	// KindParallel forks execution across every outgoing edge.
	KindParallel NodeKind = "PARALLEL"
	// KindJoin blocks until every branch of its join group arrives.
	KindJoin NodeKind = "JOIN"
	// KindLoop re-enters its body while a condition holds, bounded by a
	// mandatory maximum iteration count.
	KindLoop NodeKind = "LOOP"
	// KindDelay suspends its branch for a configured duration.
	KindDelay NodeKind = "DELAY"
	// KindMCPCall invokes an external service through the ServiceCaller.
	KindMCPCall NodeKind = "MCP_CALL"
	// KindWebhook posts to an external endpoint through the ServiceCaller.
	KindWebhook NodeKind = "WEBHOOK"
	// KindHumanApproval suspends its branch until an approve/reject signal
	// arrives for this run and node.
	KindHumanApproval NodeKind = "HUMAN_APPROVAL"
	// KindDataTransform applies a declarative transformation to the shared
	// variables. Pure and synchronous.
	KindDataTransform NodeKind = "DATA_TRANSFORM"
)

// nodeKinds enumerates every valid kind.
var nodeKinds = map[NodeKind]bool{
	KindStart:         true,
	KindEnd:           true,
	KindAgentSpawn:    true,
	KindAgentExecute:  true,
	KindCondition:     true,
	KindParallel:      true,
	KindJoin:          true,
	KindLoop:          true,
	KindDelay:         true,
	KindMCPCall:       true,
	KindWebhook:       true,
	KindHumanApproval: true,
	KindDataTransform: true,
}

// Valid reports whether k is a member of the closed kind set.
func (k NodeKind) Valid() bool { return nodeKinds[k] }

// requiredConfig lists the configuration keys each kind must carry. Validate
// reports a violation for every missing key.
var requiredConfig = map[NodeKind][]string{
	KindAgentSpawn:    {"task"},
	KindAgentExecute:  {"task"},
	KindParallel:      {"join_group"},
	KindJoin:          {"join_group"},
	KindLoop:          {"max_iterations", "body"},
	KindDelay:         {"duration"},
	KindMCPCall:       {"target"},
	KindWebhook:       {"url"},
	KindDataTransform: {"op", "output"},
}

// Node is one typed unit of work or control flow in a definition.
type Node struct {
	// ID uniquely identifies the node within its definition.
	ID string

	// Kind selects the execution semantics.
	Kind NodeKind

	// Label is an optional human-readable name.
	Label string

	// Config is interpreted per kind. See requiredConfig for the keys each
	// kind demands. Cross-kind keys: "optional" (bool) marks a node
	// best-effort so its failure drops the branch instead of failing the
	// run, and "output_key" names the shared variable that receives an
	// executor's result.
	Config map[string]any

	// Retry overrides the engine's default retry policy for this node.
	// Only recoverable failures (executor, service, timeout) are retried.
	Retry *RetryPolicy

	// Timeout overrides the engine's default per-attempt timeout. Zero
	// means no node-level override.
	Timeout time.Duration
}

// configString returns a string config value, or def when absent.
func (n Node) configString(key, def string) string {
	if v, ok := n.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// configBool returns a bool config value, false when absent.
func (n Node) configBool(key string) bool {
	v, _ := n.Config[key].(bool)
	return v
}

// configInt returns an integer config value, tolerating the float64 that
// JSON decoding produces. Returns def when absent or non-numeric.
func (n Node) configInt(key string, def int) int {
	switch v := n.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// optional reports whether the node is marked best-effort.
func (n Node) optional() bool { return n.configBool("optional") }

// Edge is a directed connection between two nodes. Condition, when set, is a
// guard expression evaluated against the run's shared variables; it is only
// meaningful on edges leaving a CONDITION node, where the first matching
// edge in declaration order is followed and a condition-less edge acts as
// the else branch.
type Edge struct {
	From      string
	To        string
	Condition string
}

// Definition is the immutable graph describing a process. Build one with the
// Builder or the template package; both guarantee the definition passes
// Validate. Fields are exported for serialization but must not be mutated
// after Build.
type Definition struct {
	ID          string
	Name        string
	Description string
	Nodes       map[string]Node
	Edges       []Edge
	Metadata    map[string]any
}

// outgoing returns the indexes into d.Edges that leave node id, in
// declaration order. Declaration order is what gives CONDITION branching its
// priority semantics.
func (d *Definition) outgoing(id string) []int {
	var idxs []int
	for i, e := range d.Edges {
		if e.From == id {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// incoming returns the indexes into d.Edges that enter node id.
func (d *Definition) incoming(id string) []int {
	var idxs []int
	for i, e := range d.Edges {
		if e.To == id {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// startNode returns the id of the START node, or "" if absent. Valid
// definitions have exactly one.
func (d *Definition) startNode() string {
	for id, n := range d.Nodes {
		if n.Kind == KindStart {
			return id
		}
	}
	return ""
}

// kindsUsed reports which node kinds appear in the definition.
func (d *Definition) kindsUsed() map[NodeKind]bool {
	used := make(map[NodeKind]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		used[n.Kind] = true
	}
	return used
}
