package flow

import (
	"fmt"
	"time"

	"github.com/dagrun/dagrun/flow/expr"
)

// Violation describes one structural problem found in a definition.
// Validate returns every violation it finds so a caller can fix them all at
// once rather than iterating one error at a time.
type Violation struct {
	// Element names the offending node id, edge (as "from->to"), or "" for
	// definition-level problems.
	Element string

	// Message describes the problem.
	Message string
}

func (v Violation) String() string {
	if v.Element == "" {
		return v.Message
	}
	return v.Element + ": " + v.Message
}

// Validate checks a definition for structural soundness. It is a pure
// function: no side effects, safe to call at any time. An empty result means
// the definition is executable.
//
// Checks performed:
//   - node ids are non-empty and match their map keys, kinds are members of
//     the closed set, per-kind required config keys are present, retry
//     policies are well formed
//   - every edge references existing nodes
//   - exactly one START with no incoming edges and exactly one
//     unconditional outgoing edge
//   - at least one END with no outgoing edges, reachable from START
//   - edge conditions parse
//   - the graph is acyclic except for back-edges targeting LOOP nodes from
//     within that loop's body
//   - JOIN join groups pair with a PARALLEL carrying the same group
func Validate(def *Definition) []Violation {
	var out []Violation
	add := func(element, format string, args ...any) {
		out = append(out, Violation{Element: element, Message: fmt.Sprintf(format, args...)})
	}

	if def == nil {
		return []Violation{{Message: "definition is nil"}}
	}
	if def.ID == "" {
		add("", "definition id is empty")
	}
	if len(def.Nodes) == 0 {
		add("", "definition has no nodes")
		return out
	}

	// Per-node checks.
	parallelGroups := map[string]int{}
	joinGroups := map[string]int{}
	for id, n := range def.Nodes {
		if id == "" {
			add("", "node with empty id")
			continue
		}
		if n.ID != id {
			add(id, "node id %q does not match its key", n.ID)
		}
		if !n.Kind.Valid() {
			add(id, "unknown node kind %q", n.Kind)
			continue
		}
		for _, key := range requiredConfig[n.Kind] {
			if _, ok := n.Config[key]; !ok {
				add(id, "%s node missing required config key %q", n.Kind, key)
			}
		}
		if n.Retry != nil {
			if err := n.Retry.Validate(); err != nil {
				add(id, "%v", err)
			}
		}
		switch n.Kind {
		case KindParallel:
			parallelGroups[n.configString("join_group", "")]++
		case KindJoin:
			joinGroups[n.configString("join_group", "")]++
		case KindLoop:
			validateLoop(def, n, add)
		case KindDelay:
			if _, err := parseDuration(n.Config["duration"]); err != nil {
				add(id, "invalid delay duration: %v", err)
			}
		case KindDataTransform:
			for _, v := range validateTransform(n) {
				out = append(out, v)
			}
		}
	}

	// Edge referential integrity and condition syntax.
	for _, e := range def.Edges {
		el := e.From + "->" + e.To
		if _, ok := def.Nodes[e.From]; !ok {
			add(el, "edge source %q does not exist", e.From)
		}
		if _, ok := def.Nodes[e.To]; !ok {
			add(el, "edge target %q does not exist", e.To)
		}
		if e.Condition != "" {
			if _, err := expr.Evaluate(e.Condition, nil); err != nil {
				add(el, "condition does not parse: %v", err)
			}
		}
	}

	out = append(out, validateTopology(def)...)

	for group := range joinGroups {
		if parallelGroups[group] == 0 {
			add("", "JOIN group %q has no matching PARALLEL node", group)
		}
	}

	return out
}

// validateLoop checks a LOOP node's bound and body wiring.
func validateLoop(def *Definition, n Node, add func(string, string, ...any)) {
	if max := n.configInt("max_iterations", 0); max < 1 {
		add(n.ID, "LOOP max_iterations must be >= 1")
	}
	body := n.configString("body", "")
	if body == "" {
		return // missing key already reported
	}
	if _, ok := def.Nodes[body]; !ok {
		add(n.ID, "LOOP body %q does not exist", body)
		return
	}
	for _, i := range def.outgoing(n.ID) {
		if def.Edges[i].To == body {
			return
		}
	}
	add(n.ID, "LOOP has no edge to its body %q", body)
}

// validateTopology checks the START/END shape, reachability, and acyclicity.
func validateTopology(def *Definition) []Violation {
	var out []Violation
	add := func(element, format string, args ...any) {
		out = append(out, Violation{Element: element, Message: fmt.Sprintf(format, args...)})
	}

	var starts, ends []string
	for id, n := range def.Nodes {
		switch n.Kind {
		case KindStart:
			starts = append(starts, id)
			if len(def.incoming(id)) > 0 {
				add(id, "START node must have no incoming edges")
			}
			outs := def.outgoing(id)
			if len(outs) != 1 {
				add(id, "START node must have exactly one outgoing edge, has %d", len(outs))
			} else if def.Edges[outs[0]].Condition != "" {
				add(id, "START node's outgoing edge must be unconditional")
			}
		case KindEnd:
			ends = append(ends, id)
			if len(def.outgoing(id)) > 0 {
				add(id, "END node must have no outgoing edges")
			}
		}
	}
	if len(starts) != 1 {
		add("", "definition must have exactly one START node, has %d", len(starts))
	}
	if len(ends) == 0 {
		add("", "definition must have at least one END node")
	}

	if len(starts) == 1 {
		reached := reachableFrom(def, starts[0])
		endReachable := false
		for _, id := range ends {
			if reached[id] {
				endReachable = true
				break
			}
		}
		if len(ends) > 0 && !endReachable {
			add("", "no END node is reachable from START")
		}
	}

	out = append(out, findForbiddenCycles(def)...)
	return out
}

// reachableFrom returns the set of node ids reachable from start.
func reachableFrom(def *Definition, start string) map[string]bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, i := range def.outgoing(id) {
			to := def.Edges[i].To
			if !seen[to] {
				seen[to] = true
				stack = append(stack, to)
			}
		}
	}
	return seen
}

// findForbiddenCycles checks that the graph is acyclic once LOOP back-edges
// are set aside. A back-edge is permitted only when it targets a LOOP node
// from inside that loop's own body; that is the designated way to re-enter
// an iteration. With those edges excluded the rest of the graph must form a
// DAG, so any remaining back-edge is an unintended cycle no matter where
// the walk starts.
func findForbiddenCycles(def *Definition) []Violation {
	loopBack := make(map[int]bool)
	for _, n := range def.Nodes {
		if n.Kind != KindLoop {
			continue
		}
		body := loopBody(def, n)
		for i, e := range def.Edges {
			if e.To == n.ID && body[e.From] {
				loopBack[i] = true
			}
		}
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // finished
	)
	color := make(map[string]int, len(def.Nodes))
	var out []Violation

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		for _, i := range def.outgoing(id) {
			if loopBack[i] {
				continue
			}
			to := def.Edges[i].To
			if _, ok := def.Nodes[to]; !ok {
				continue // dangling edge reported elsewhere
			}
			switch color[to] {
			case white:
				visit(to)
			case gray:
				out = append(out, Violation{
					Element: id + "->" + to,
					Message: "cycle not formed by a LOOP back-edge",
				})
			}
		}
		color[id] = black
	}

	for id := range def.Nodes {
		if color[id] == white {
			visit(id)
		}
	}
	return out
}

// loopBody returns the ids of the nodes inside a LOOP's body: everything
// reachable from the body entry without traversing through the loop node
// itself. The engine resets these to PENDING on each iteration.
func loopBody(def *Definition, loop Node) map[string]bool {
	entry := loop.configString("body", "")
	if entry == "" {
		return nil
	}
	body := map[string]bool{entry: true}
	stack := []string{entry}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, i := range def.outgoing(id) {
			to := def.Edges[i].To
			if to == loop.ID || body[to] {
				continue
			}
			body[to] = true
			stack = append(stack, to)
		}
	}
	return body
}

// parseDuration accepts a duration config value as either a Go duration
// string ("250ms", "2s") or a number of seconds.
func parseDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case string:
		return time.ParseDuration(d)
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("unsupported duration value %v (%T)", v, v)
}
