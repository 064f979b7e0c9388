package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dagrun/dagrun/flow/emit"
)

// TaskExecutor performs the actual work behind AGENT_SPAWN and AGENT_EXECUTE
// nodes. Implementations may be long-running and must honor context
// cancellation. The flow/exec package provides HTTP- and LLM-backed
// implementations plus a scriptable mock.
type TaskExecutor interface {
	// Execute runs the task described by the node's configuration with a
	// snapshot of the run's shared variables, returning the result value to
	// merge into the variable store.
	Execute(ctx context.Context, node Node, vars map[string]any) (any, error)
}

// ServiceCaller reaches external services on behalf of MCP_CALL and WEBHOOK
// nodes. Calls are timeout-bound through the node timeout machinery.
type ServiceCaller interface {
	// Call invokes the service identified by target with the given payload.
	Call(ctx context.Context, target string, payload map[string]any) (map[string]any, error)
}

// Store holds in-flight and completed run state. The engine writes a
// snapshot after every transition batch; once a run is terminal the stored
// record is read-only history. The flow/store package provides in-memory,
// SQLite, and MySQL implementations.
type Store interface {
	// CreateRun inserts the initial state of a new run.
	CreateRun(ctx context.Context, run *Execution) error
	// SaveRun replaces the stored state of an existing run.
	SaveRun(ctx context.Context, run *Execution) error
	// GetRun retrieves a run by id.
	GetRun(ctx context.Context, runID string) (*Execution, error)
	// ListRuns returns the ids of all stored runs.
	ListRuns(ctx context.Context) ([]string, error)
	// DeleteRun removes a run's stored state.
	DeleteRun(ctx context.Context, runID string) error
}

// Engine executes validated definitions. It schedules nodes whose
// dependencies are satisfied, runs independent branches concurrently,
// applies per-node retry policies, and emits an event for every status
// transition.
//
// One Engine may drive many concurrent runs; per-run state lives in the
// run's coordinator, and the Engine only tracks the handles needed for
// Cancel, Approve, and Reject.
type Engine struct {
	mu sync.RWMutex

	store    Store
	emitter  emit.Emitter
	executor TaskExecutor
	services ServiceCaller
	metrics  *Metrics

	maxConcurrent  int
	defaultTimeout time.Duration
	defaultRetry   *RetryPolicy

	// active run handles by run id, live only while Run is in flight.
	runs map[string]*runHandle

	// approval wait channels keyed by run id then node id.
	approvals map[string]map[string]chan approvalDecision
}

type runHandle struct {
	cancel context.CancelFunc
}

type approvalDecision struct {
	approved bool
	reason   string
}

// Option configures an Engine.
type Option func(*Engine)

// WithTaskExecutor installs the collaborator behind AGENT_SPAWN and
// AGENT_EXECUTE nodes.
func WithTaskExecutor(executor TaskExecutor) Option {
	return func(e *Engine) { e.executor = executor }
}

// WithServiceCaller installs the collaborator behind MCP_CALL and WEBHOOK
// nodes.
func WithServiceCaller(services ServiceCaller) Option {
	return func(e *Engine) { e.services = services }
}

// WithMaxConcurrent bounds how many suspending nodes (executor calls,
// service calls, delays, approval waits) one run keeps in flight at once.
// Default 8.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithDefaultNodeTimeout sets the per-attempt timeout applied to nodes that
// carry no timeout of their own. Zero means unlimited.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(e *Engine) { e.defaultTimeout = d }
}

// WithDefaultRetry sets the retry policy applied to nodes that carry none.
func WithDefaultRetry(policy RetryPolicy) Option {
	return func(e *Engine) { e.defaultRetry = &policy }
}

// WithMetrics installs a Prometheus metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an Engine. The store is required; a nil emitter
// defaults to emit.NullEmitter. Collaborators are optional until a
// definition uses a node kind that needs them, at which point Run fails
// fast with an ErrInvalidDefinition error.
func NewEngine(store Store, emitter emit.Emitter, opts ...Option) *Engine {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	e := &Engine{
		store:         store,
		emitter:       emitter,
		maxConcurrent: 8,
		runs:          make(map[string]*runHandle),
		approvals:     make(map[string]map[string]chan approvalDecision),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes def to completion, failure, or cancellation, blocking until
// the run is terminal. An empty runID gets a generated UUID. The returned
// Execution is the final run state and is also persisted in the Store; err
// is nil only for a SUCCEEDED run.
//
// Cancel, Approve, and Reject act on in-flight runs from other goroutines.
func (e *Engine) Run(ctx context.Context, runID string, def *Definition, vars map[string]any) (*Execution, error) {
	if e.store == nil {
		return nil, &Error{Kind: ErrInvalidDefinition, Message: "engine requires a store"}
	}
	if violations := Validate(def); len(violations) > 0 {
		return nil, invalidDefinition(violations)
	}
	if err := e.checkCollaborators(def); err != nil {
		return nil, err
	}

	if runID == "" {
		runID = uuid.NewString()
	}

	run := newExecution(runID, def, vars)
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run %s: %w", runID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.runs[runID] = &runHandle{cancel: cancel}
	e.mu.Unlock()

	c := newCoordinator(e, def, run)
	err := c.execute(runCtx)

	e.mu.Lock()
	delete(e.runs, runID)
	delete(e.approvals, runID)
	e.mu.Unlock()

	// The final save must survive the run context being cancelled.
	if saveErr := e.store.SaveRun(context.WithoutCancel(ctx), run); saveErr != nil && err == nil {
		err = fmt.Errorf("persist final state of run %s: %w", runID, saveErr)
	}
	return run, err
}

// checkCollaborators fails fast when the definition uses node kinds whose
// collaborator was not installed.
func (e *Engine) checkCollaborators(def *Definition) error {
	used := def.kindsUsed()
	if e.executor == nil && (used[KindAgentSpawn] || used[KindAgentExecute]) {
		return &Error{Kind: ErrInvalidDefinition, Message: "definition uses agent nodes but no TaskExecutor is configured"}
	}
	if e.services == nil && (used[KindMCPCall] || used[KindWebhook]) {
		return &Error{Kind: ErrInvalidDefinition, Message: "definition uses service nodes but no ServiceCaller is configured"}
	}
	return nil
}

// Cancel cancels an in-flight run. RUNNING, READY, and AWAITING_APPROVAL
// nodes transition to CANCELLED, outstanding collaborator calls observe
// context cancellation, and the run finishes with status CANCELLED.
// Cancellation is terminal and not retryable.
func (e *Engine) Cancel(runID string) error {
	e.mu.RLock()
	handle, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return &Error{Kind: ErrRunCancelled, Message: "no in-flight run " + runID}
	}
	handle.cancel()
	return nil
}

// Approve resolves a HUMAN_APPROVAL node that is awaiting a signal for
// (runID, nodeID); the branch resumes with the node SUCCEEDED.
func (e *Engine) Approve(runID, nodeID string) error {
	return e.signalApproval(runID, nodeID, approvalDecision{approved: true})
}

// Reject resolves a HUMAN_APPROVAL node with a rejection; the node fails
// with ErrApprovalRejected carrying the reason.
func (e *Engine) Reject(runID, nodeID, reason string) error {
	return e.signalApproval(runID, nodeID, approvalDecision{approved: false, reason: reason})
}

func (e *Engine) signalApproval(runID, nodeID string, decision approvalDecision) error {
	e.mu.Lock()
	var ch chan approvalDecision
	if byNode, ok := e.approvals[runID]; ok {
		ch = byNode[nodeID]
		delete(byNode, nodeID)
	}
	e.mu.Unlock()

	if ch == nil {
		return &Error{
			Kind:    ErrApprovalRejected,
			NodeID:  nodeID,
			Message: "no approval pending for run " + runID,
		}
	}
	ch <- decision
	return nil
}

// registerApproval creates the wait channel an approval worker blocks on.
// The channel has capacity 1 so the signaling goroutine never blocks even
// if the run is cancelled while a decision is in flight.
func (e *Engine) registerApproval(runID, nodeID string) chan approvalDecision {
	ch := make(chan approvalDecision, 1)
	e.mu.Lock()
	if e.approvals[runID] == nil {
		e.approvals[runID] = make(map[string]chan approvalDecision)
	}
	e.approvals[runID][nodeID] = ch
	e.mu.Unlock()
	return ch
}

// unregisterApproval removes a wait channel after the worker stops waiting.
func (e *Engine) unregisterApproval(runID, nodeID string) {
	e.mu.Lock()
	if byNode, ok := e.approvals[runID]; ok {
		delete(byNode, nodeID)
	}
	e.mu.Unlock()
}

// GetRun retrieves run state, in-flight or historical, from the Store.
func (e *Engine) GetRun(ctx context.Context, runID string) (*Execution, error) {
	return e.store.GetRun(ctx, runID)
}
