package flow

import (
	"context"
	"time"

	"dario.cat/mergo"
	"golang.org/x/sync/semaphore"

	"github.com/dagrun/dagrun/flow/emit"
)

// edgeMark is the runtime resolution of one edge.
type edgeMark int

const (
	// edgeUnresolved means the source has not finished (or not chosen).
	edgeUnresolved edgeMark = iota
	// edgeTaken means control flows across this edge.
	edgeTaken
	// edgeDropped means the edge will never deliver control this
	// iteration: its source was skipped, its branch was not chosen, or an
	// optional source failed.
	edgeDropped
)

// outcome is the result of one node execution reported back to the
// coordinator. Workers send an interim outcome for AWAITING_APPROVAL and a
// final one when they finish.
type outcome struct {
	nodeID   string
	status   NodeStatus
	interim  bool
	err      *Error
	output   any
	attempts int

	// chosen is the def.Edges index a CONDITION selected, -1 otherwise.
	chosen int

	// loopEnter is true when a LOOP decided to (re-)enter its body,
	// false when it succeeded by exiting.
	loopEnter bool
}

// coordinator drives one run. It owns all mutation of the Execution and the
// edge marks: nodes whose kind suspends (executor calls, service calls,
// delays, approval waits) run in worker goroutines against a snapshot of
// the shared variables and report back through the done channel, so the
// scheduling state machine itself is single-threaded.
type coordinator struct {
	eng *Engine
	def *Definition
	run *Execution

	marks []edgeMark

	// loopIter counts completed body entries per LOOP node id.
	loopIter map[string]int
	// bodies caches each LOOP's body node set.
	bodies map[string]map[string]bool
	// backEdges maps a def.Edges index to the LOOP node id it re-enters.
	backEdges map[int]string

	queue    []outcome // outcomes from inline (control-flow) nodes
	done     chan outcome
	inflight int
	sem      *semaphore.Weighted

	endReached bool
	failure    *Error
	stop       context.CancelFunc
}

func newCoordinator(eng *Engine, def *Definition, run *Execution) *coordinator {
	c := &coordinator{
		eng:       eng,
		def:       def,
		run:       run,
		marks:     make([]edgeMark, len(def.Edges)),
		loopIter:  make(map[string]int),
		bodies:    make(map[string]map[string]bool),
		backEdges: make(map[int]string),
		done:      make(chan outcome, 2*len(def.Nodes)+8),
		sem:       semaphore.NewWeighted(int64(eng.maxConcurrent)),
	}
	for id, n := range def.Nodes {
		if n.Kind != KindLoop {
			continue
		}
		body := loopBody(def, n)
		c.bodies[id] = body
		for i, e := range def.Edges {
			if e.To == id && body[e.From] {
				c.backEdges[i] = id
			}
		}
	}
	return c
}

// execute drives the graph until quiescence: no node READY or RUNNING. It
// returns nil only for a successful run.
func (c *coordinator) execute(ctx context.Context) error {
	workCtx, stop := context.WithCancel(ctx)
	defer stop()
	c.stop = stop

	c.run.StartedAt = time.Now()
	c.setRunStatus(RunRunning, "run started")
	c.save(ctx)

	c.schedule(workCtx, c.def.startNode())

	for {
		for len(c.queue) > 0 {
			out := c.queue[0]
			c.queue = c.queue[1:]
			c.apply(workCtx, out)
		}
		if c.inflight == 0 {
			break
		}
		out := <-c.done
		if !out.interim {
			c.inflight--
		}
		c.apply(workCtx, out)
	}

	return c.finish(ctx)
}

// schedule moves a node through READY into execution. Control-flow kinds
// resolve inline on the coordinator goroutine; suspending kinds get a
// worker goroutine and a snapshot of the shared variables, and stay READY
// until their worker clears the concurrency limit.
func (c *coordinator) schedule(ctx context.Context, nodeID string) {
	node := c.def.Nodes[nodeID]
	if ctx.Err() != nil {
		c.transition(nodeID, NodeCancelled, nil)
		return
	}

	c.transition(nodeID, NodeReady, nil)

	switch node.Kind {
	case KindStart, KindEnd, KindCondition, KindParallel, KindJoin, KindLoop, KindDataTransform:
		c.transition(nodeID, NodeRunning, nil)
		c.queue = append(c.queue, c.executeInline(node))
	default:
		c.inflight++
		vars := cloneVars(c.run.Vars)
		go c.work(ctx, node, vars)
	}
}

// apply folds one outcome into the run state and resolves downstream edges.
func (c *coordinator) apply(ctx context.Context, out outcome) {
	ns := c.run.Nodes[out.nodeID]
	node := c.def.Nodes[out.nodeID]

	if out.interim {
		c.transition(out.nodeID, out.status, nil)
		c.save(ctx)
		return
	}

	if out.attempts > 0 {
		ns.Attempts = out.attempts
	}

	switch out.status {
	case NodeSucceeded:
		ns.Output = out.output
		c.transition(out.nodeID, NodeSucceeded, map[string]any{"attempt": ns.Attempts})
		c.mergeOutput(node, out.output)
		if node.Kind == KindEnd {
			c.endReached = true
		}
		c.resolveOutgoing(ctx, node, out)

	case NodeFailed:
		ns.LastError = out.err.Error()
		c.transition(out.nodeID, NodeFailed, map[string]any{"error": out.err.Error()})
		if node.optional() {
			// Best-effort node: drop the branch, keep the run alive.
			c.dropOutgoing(ctx, node.ID)
		} else if c.failure == nil {
			c.failure = out.err
			c.stop()
		}

	case NodeCancelled:
		c.transition(out.nodeID, NodeCancelled, nil)
	}

	c.save(ctx)
}

// mergeOutput folds an agent result into the shared variables. MCP_CALL and
// WEBHOOK results stay on the NodeState only.
func (c *coordinator) mergeOutput(node Node, output any) {
	if output == nil || (node.Kind != KindAgentSpawn && node.Kind != KindAgentExecute) {
		return
	}
	if node.configBool("merge") {
		if m, ok := output.(map[string]any); ok {
			if err := mergo.Merge(&c.run.Vars, m, mergo.WithOverride); err == nil {
				return
			}
		}
	}
	c.run.Vars[node.configString("output_key", node.ID+"_output")] = output
}

// resolveOutgoing marks the outgoing edges of a succeeded node and wakes any
// targets that became ready.
func (c *coordinator) resolveOutgoing(ctx context.Context, node Node, out outcome) {
	outs := c.def.outgoing(node.ID)

	switch node.Kind {
	case KindCondition:
		for _, i := range outs {
			if i == out.chosen {
				c.resolve(ctx, i, edgeTaken)
			} else {
				c.resolve(ctx, i, edgeDropped)
			}
		}

	case KindLoop:
		body := node.configString("body", "")
		if out.loopEnter {
			c.resetLoopBody(node)
			for _, i := range outs {
				if c.def.Edges[i].To == body {
					c.resolve(ctx, i, edgeTaken)
				}
				// Exit edges stay unresolved until the loop exits.
			}
		} else {
			for _, i := range outs {
				if c.def.Edges[i].To == body {
					c.resolve(ctx, i, edgeDropped)
				} else {
					c.resolve(ctx, i, edgeTaken)
				}
			}
		}

	default:
		for _, i := range outs {
			c.resolve(ctx, i, edgeTaken)
		}
	}
}

// dropOutgoing resolves every unresolved outgoing edge of a node as
// dropped, cascading skips downstream.
func (c *coordinator) dropOutgoing(ctx context.Context, nodeID string) {
	for _, i := range c.def.outgoing(nodeID) {
		if c.marks[i] == edgeUnresolved {
			c.resolve(ctx, i, edgeDropped)
		}
	}
}

// resolve marks one edge and notifies its target. A taken back-edge
// re-readies its LOOP for the next iteration.
func (c *coordinator) resolve(ctx context.Context, edgeIdx int, mark edgeMark) {
	c.marks[edgeIdx] = mark
	to := c.def.Edges[edgeIdx].To

	if loopID, isBack := c.backEdges[edgeIdx]; isBack && loopID == to {
		if mark == edgeTaken {
			// Fresh state for the next iteration's loop evaluation.
			c.run.Nodes[to] = &NodeState{Status: NodePending}
			c.schedule(ctx, to)
		}
		return
	}

	c.maybeSchedule(ctx, to)
}

// maybeSchedule checks a node's readiness: every incoming edge resolved and
// at least one taken. All dropped means the node is skipped and the skip
// cascades. Back-edges into a LOOP are excluded from its first-entry
// readiness; re-entry is driven by resolve instead.
func (c *coordinator) maybeSchedule(ctx context.Context, nodeID string) {
	ns, ok := c.run.Nodes[nodeID]
	if !ok || ns.Status != NodePending {
		return
	}

	taken := 0
	for _, i := range c.def.incoming(nodeID) {
		if loopID, isBack := c.backEdges[i]; isBack && loopID == nodeID {
			continue
		}
		switch c.marks[i] {
		case edgeUnresolved:
			return
		case edgeTaken:
			taken++
		}
	}

	if taken == 0 {
		c.transition(nodeID, NodeSkipped, nil)
		c.dropOutgoing(ctx, nodeID)
		return
	}
	c.schedule(ctx, nodeID)
}

// resetLoopBody gives every body node a fresh NodeState and clears the
// resolution of body-internal edges and back-edges, so the next iteration
// re-executes the body from scratch. The shared variables persist across
// iterations.
func (c *coordinator) resetLoopBody(loop Node) {
	body := c.bodies[loop.ID]
	for id := range body {
		c.run.Nodes[id] = &NodeState{Status: NodePending}
	}
	for i, e := range c.def.Edges {
		inBody := body[e.From]
		if inBody && (body[e.To] || e.To == loop.ID) {
			c.marks[i] = edgeUnresolved
		}
	}
}

// finish marks leftover nodes, settles the run status, and returns the
// run-level error.
func (c *coordinator) finish(ctx context.Context) error {
	for id, ns := range c.run.Nodes {
		switch ns.Status {
		case NodeReady, NodeRunning, NodeAwaitingApproval:
			c.transition(id, NodeCancelled, nil)
		}
	}

	c.run.EndedAt = time.Now()
	cancelled := ctx.Err() != nil && c.failure == nil

	switch {
	case c.failure != nil:
		c.run.Status = RunFailed
		c.run.FailedNode = c.failure.NodeID
		c.run.LastError = c.failure.Error()
		c.emitRun(RunFailed, "run failed", map[string]any{"error": c.failure.Error()})
		c.eng.metrics.runFinished(RunFailed)
		return c.failure

	case cancelled:
		c.run.Status = RunCancelled
		c.emitRun(RunCancelled, "run cancelled", nil)
		c.eng.metrics.runFinished(RunCancelled)
		return &Error{Kind: ErrRunCancelled, Message: "run " + c.run.ID + " cancelled"}

	case c.endReached:
		c.run.Status = RunSucceeded
		c.emitRun(RunSucceeded, "run succeeded", nil)
		c.eng.metrics.runFinished(RunSucceeded)
		return nil

	default:
		// Quiescent without reaching an END: every branch dead-ended.
		err := &Error{Kind: ErrNoMatchingBranch, Message: "execution quiesced without reaching an END node"}
		c.run.Status = RunFailed
		c.run.LastError = err.Error()
		c.emitRun(RunFailed, "run failed", map[string]any{"error": err.Error()})
		c.eng.metrics.runFinished(RunFailed)
		return err
	}
}

// transition moves one node to a new status and emits the change.
func (c *coordinator) transition(nodeID string, to NodeStatus, meta map[string]any) {
	ns := c.run.Nodes[nodeID]
	from := ns.Status
	if from == to {
		return
	}
	ns.Status = to

	c.eng.emitter.Emit(emit.Event{
		RunID:     c.run.ID,
		NodeID:    nodeID,
		From:      string(from),
		To:        string(to),
		Timestamp: time.Now(),
		Meta:      meta,
	})
	c.eng.metrics.nodeTransition(c.def.Nodes[nodeID].Kind, to)
}

// setRunStatus transitions the run itself.
func (c *coordinator) setRunStatus(to RunStatus, msg string) {
	c.run.Status = to
	c.emitRun(to, msg, nil)
}

func (c *coordinator) emitRun(to RunStatus, msg string, meta map[string]any) {
	c.eng.emitter.Emit(emit.Event{
		RunID:     c.run.ID,
		To:        string(to),
		Timestamp: time.Now(),
		Msg:       msg,
		Meta:      meta,
	})
}

// save snapshots the run into the store. Saves during the run are
// best-effort notifications of progress; the final save in Engine.Run is
// the one whose failure is surfaced.
func (c *coordinator) save(ctx context.Context) {
	snap, err := c.run.Clone()
	if err != nil {
		return
	}
	_ = c.eng.store.SaveRun(context.WithoutCancel(ctx), snap)
}
