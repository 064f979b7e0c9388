package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dagrun/dagrun/flow/expr"
)

// executeInline resolves a control-flow node on the coordinator goroutine.
// These kinds never block and read or write the shared variables directly.
func (c *coordinator) executeInline(node Node) outcome {
	out := outcome{nodeID: node.ID, status: NodeSucceeded, chosen: -1}

	switch node.Kind {
	case KindStart, KindEnd, KindParallel:
		// Pure control flow.

	case KindCondition:
		idx, err := c.chooseBranch(node)
		if err != nil {
			out.status = NodeFailed
			out.err = err
			break
		}
		out.chosen = idx

	case KindJoin:
		if err := c.checkJoin(node); err != nil {
			out.status = NodeFailed
			out.err = err
		}

	case KindLoop:
		enter, err := c.stepLoop(node)
		if err != nil {
			out.status = NodeFailed
			out.err = err
			break
		}
		out.loopEnter = enter

	case KindDataTransform:
		result, err := applyTransform(node, c.run.Vars)
		if err != nil {
			out.status = NodeFailed
			out.err = &Error{
				Kind:    ErrInvalidDefinition,
				NodeID:  node.ID,
				Message: "data transform failed",
				Cause:   err,
			}
			break
		}
		out.output = result
	}

	return out
}

// chooseBranch picks the first outgoing edge of a CONDITION whose condition
// evaluates true against the shared variables. An edge with an empty
// condition always matches, so it works as an else branch when listed last.
func (c *coordinator) chooseBranch(node Node) (int, *Error) {
	for _, i := range c.def.outgoing(node.ID) {
		e := c.def.Edges[i]
		if e.Condition == "" {
			return i, nil
		}
		ok, err := expr.Evaluate(e.Condition, c.run.Vars)
		if err != nil {
			return -1, &Error{
				Kind:    ErrInvalidDefinition,
				NodeID:  node.ID,
				Message: fmt.Sprintf("condition %q failed to evaluate", e.Condition),
				Cause:   err,
			}
		}
		if ok {
			return i, nil
		}
	}
	return -1, &Error{
		Kind:    ErrNoMatchingBranch,
		NodeID:  node.ID,
		Message: "no outgoing edge condition matched",
	}
}

// checkJoin inspects the nodes feeding this JOIN. By the time the JOIN is
// scheduled every incoming edge has resolved, so the sources are settled.
// Any failed source fails the join unless tolerate_partial is set, and a
// tolerant join still needs at least one successful source.
func (c *coordinator) checkJoin(node Node) *Error {
	var failed, succeeded int
	for _, i := range c.def.incoming(node.ID) {
		switch c.run.Nodes[c.def.Edges[i].From].Status {
		case NodeFailed:
			failed++
		case NodeSucceeded:
			succeeded++
		}
	}

	tolerate := node.configBool("tolerate_partial")
	if failed > 0 && !tolerate {
		return &Error{
			Kind:    ErrJoinedBranchFailed,
			NodeID:  node.ID,
			Message: fmt.Sprintf("%d joined branch(es) failed", failed),
		}
	}
	if tolerate && succeeded == 0 {
		return &Error{
			Kind:    ErrJoinedBranchFailed,
			NodeID:  node.ID,
			Message: "every joined branch failed",
		}
	}
	return nil
}

// stepLoop decides whether a LOOP re-enters its body or exits. The
// iteration counter tracks completed body entries; deciding to continue at
// the max_iterations bound is the failure, not the bound-th iteration
// itself.
func (c *coordinator) stepLoop(node Node) (bool, *Error) {
	iter := c.loopIter[node.ID]
	maxIter := node.configInt("max_iterations", 0)

	again, err := c.loopContinues(node, iter)
	if err != nil {
		return false, err
	}
	if !again {
		return false, nil
	}
	if iter >= maxIter {
		return false, &Error{
			Kind:    ErrLoopBoundExceeded,
			NodeID:  node.ID,
			Message: fmt.Sprintf("loop exceeded max_iterations=%d", maxIter),
		}
	}
	c.loopIter[node.ID] = iter + 1
	return true, nil
}

// loopContinues evaluates the loop's continuation rule: an explicit
// condition wins, then a fixed count, and a loop with neither runs until
// the bound stops it.
func (c *coordinator) loopContinues(node Node, iter int) (bool, *Error) {
	if cond := node.configString("condition", ""); cond != "" {
		ok, err := expr.Evaluate(cond, c.run.Vars)
		if err != nil {
			return false, &Error{
				Kind:    ErrInvalidDefinition,
				NodeID:  node.ID,
				Message: fmt.Sprintf("loop condition %q failed to evaluate", cond),
				Cause:   err,
			}
		}
		return ok, nil
	}
	if count := node.configInt("count", -1); count >= 0 {
		return iter < count, nil
	}
	return true, nil
}

// work runs one suspending node to completion in its own goroutine,
// applying the retry policy between failed attempts, and reports the final
// outcome on the done channel. vars is the coordinator's snapshot of the
// shared variables at schedule time.
func (c *coordinator) work(ctx context.Context, node Node, vars map[string]any) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.done <- outcome{nodeID: node.ID, status: NodeCancelled}
		return
	}
	defer c.sem.Release(1)

	// The node was READY while queued behind the concurrency limit; it is
	// only RUNNING once it holds a slot.
	c.done <- outcome{nodeID: node.ID, status: NodeRunning, interim: true}

	policy := node.Retry
	if policy == nil {
		policy = c.eng.defaultRetry
	}
	maxAttempts := 1
	if policy != nil && policy.MaxAttempts > 0 {
		maxAttempts = policy.MaxAttempts
	}

	attempts := 0
	for {
		attempts++
		c.eng.metrics.attemptStarted(node.Kind)
		started := time.Now()
		result, err := c.invoke(ctx, node, vars)
		c.eng.metrics.attemptFinished(node.Kind, time.Since(started), err)

		if err == nil {
			c.done <- outcome{nodeID: node.ID, status: NodeSucceeded, output: result, attempts: attempts}
			return
		}
		if ctx.Err() != nil {
			c.done <- outcome{nodeID: node.ID, status: NodeCancelled, attempts: attempts}
			return
		}

		fe := c.classify(node, err)
		if !fe.Kind.Retryable() || attempts >= maxAttempts {
			c.done <- outcome{nodeID: node.ID, status: NodeFailed, err: fe, attempts: attempts}
			return
		}

		c.eng.metrics.retryScheduled(node.Kind)
		select {
		case <-time.After(policy.delay(attempts)):
		case <-ctx.Done():
			c.done <- outcome{nodeID: node.ID, status: NodeCancelled, attempts: attempts}
			return
		}
	}
}

// invoke performs one attempt of a suspending node.
func (c *coordinator) invoke(ctx context.Context, node Node, vars map[string]any) (any, error) {
	switch node.Kind {
	case KindAgentSpawn, KindAgentExecute:
		return withNodeTimeout(ctx, node, c.eng.defaultTimeout, func(ctx context.Context) (any, error) {
			return c.eng.executor.Execute(ctx, node, vars)
		})

	case KindMCPCall:
		return c.callService(ctx, node, node.configString("target", ""))

	case KindWebhook:
		return c.callService(ctx, node, node.configString("url", ""))

	case KindDelay:
		// Validated at build time, so this cannot fail here.
		d, err := parseDuration(node.Config["duration"])
		if err != nil {
			return nil, &Error{Kind: ErrInvalidDefinition, NodeID: node.ID, Message: "invalid duration", Cause: err}
		}
		select {
		case <-time.After(d):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}

	case KindHumanApproval:
		return c.awaitApproval(ctx, node)
	}

	return nil, &Error{Kind: ErrInvalidDefinition, NodeID: node.ID, Message: "unexpected kind " + string(node.Kind)}
}

// callService invokes the engine's ServiceCaller under the node timeout.
func (c *coordinator) callService(ctx context.Context, node Node, target string) (any, error) {
	payload, _ := node.Config["payload"].(map[string]any)
	return withNodeTimeout(ctx, node, c.eng.defaultTimeout, func(ctx context.Context) (any, error) {
		return c.eng.services.Call(ctx, target, payload)
	})
}

// awaitApproval parks the node until Approve or Reject is called for it, or
// the run context ends. It reports an interim AWAITING_APPROVAL outcome so
// the coordinator can expose and persist the paused state.
func (c *coordinator) awaitApproval(ctx context.Context, node Node) (any, error) {
	ch := c.eng.registerApproval(c.run.ID, node.ID)
	defer c.eng.unregisterApproval(c.run.ID, node.ID)

	c.done <- outcome{nodeID: node.ID, status: NodeAwaitingApproval, interim: true}

	select {
	case d := <-ch:
		if d.approved {
			return map[string]any{"approved": true}, nil
		}
		return nil, &Error{
			Kind:    ErrApprovalRejected,
			NodeID:  node.ID,
			Message: "approval rejected: " + d.reason,
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// classify wraps an attempt error into the engine taxonomy. Errors that
// already carry a kind pass through with the node id filled in.
func (c *coordinator) classify(node Node, err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		if fe.NodeID == "" {
			fe.NodeID = node.ID
		}
		return fe
	}

	kind := ErrExecutorFailure
	if node.Kind == KindMCPCall || node.Kind == KindWebhook {
		kind = ErrServiceFailure
	}
	return &Error{
		Kind:    kind,
		NodeID:  node.ID,
		Message: "attempt failed",
		Cause:   err,
	}
}
