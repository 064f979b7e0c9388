package flow

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// RunStatus is the overall status of one Execution.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the run has finished; terminal executions are
// read-only history.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCancelled
}

// NodeStatus is the status of one node within one run.
type NodeStatus string

const (
	NodePending          NodeStatus = "PENDING"
	NodeReady            NodeStatus = "READY"
	NodeRunning          NodeStatus = "RUNNING"
	NodeSucceeded        NodeStatus = "SUCCEEDED"
	NodeFailed           NodeStatus = "FAILED"
	NodeSkipped          NodeStatus = "SKIPPED"
	NodeCancelled        NodeStatus = "CANCELLED"
	NodeAwaitingApproval NodeStatus = "AWAITING_APPROVAL"
)

// Terminal reports whether the node has reached a final status for the
// current loop iteration.
func (s NodeStatus) Terminal() bool {
	return s == NodeSucceeded || s == NodeFailed || s == NodeSkipped || s == NodeCancelled
}

// NodeState tracks one node's progress within one run.
type NodeState struct {
	Status    NodeStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	Output    any        `json:"output,omitempty"`
}

// Execution is one run of a definition. It is owned exclusively by the
// engine until Status becomes terminal; afterwards it is read-only history
// held by the Store. Vars is the shared variable store mutated by nodes of
// this run only; parallel branches writing the same name is a caller error
// resolved last-writer-wins (write distinct names per branch and merge
// explicitly after the JOIN instead).
type Execution struct {
	ID           string                `json:"id"`
	DefinitionID string                `json:"definition_id"`
	Status       RunStatus             `json:"status"`
	StartedAt    time.Time             `json:"started_at"`
	EndedAt      time.Time             `json:"ended_at,omitzero"`
	Vars         map[string]any        `json:"vars"`
	Nodes        map[string]*NodeState `json:"nodes"`

	// FailedNode and LastError identify the originating failure of a
	// FAILED run. A failed run never hides which node failed and why.
	FailedNode string `json:"failed_node,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// newExecution creates the initial run state for a definition: every node
// PENDING, the shared variables seeded from the caller's initial values.
func newExecution(id string, def *Definition, vars map[string]any) *Execution {
	nodes := make(map[string]*NodeState, len(def.Nodes))
	for nodeID := range def.Nodes {
		nodes[nodeID] = &NodeState{Status: NodePending}
	}
	if vars == nil {
		vars = make(map[string]any)
	}
	return &Execution{
		ID:           id,
		DefinitionID: def.ID,
		Status:       RunPending,
		Vars:         vars,
		Nodes:        nodes,
	}
}

// Clone deep-copies the execution via a JSON round trip, so stores and
// observers can hold a snapshot without racing the engine's mutations.
// Variable values must therefore be JSON-serializable, which the codec
// already requires of node configuration.
func (x *Execution) Clone() (*Execution, error) {
	data, err := json.Marshal(x)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution: %w", err)
	}
	var copied Execution
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return &copied, nil
}

// cloneVars deep-copies the shared variables for handing to a worker
// goroutine.
func cloneVars(vars map[string]any) map[string]any {
	data, err := json.Marshal(vars)
	if err != nil {
		// Non-serializable values are a caller error; hand workers an
		// empty scope rather than a racy shared map.
		return map[string]any{}
	}
	out := make(map[string]any, len(vars))
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}
