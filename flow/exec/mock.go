package exec

import (
	"context"
	"fmt"
	"sync"

	"github.com/dagrun/dagrun/flow"
)

// MockExecutor is a scriptable flow.TaskExecutor for tests. Script a node
// with a fixed result, a fixed error, a fail-then-succeed sequence, or an
// arbitrary function. Unscripted nodes return a placeholder result so
// simple graphs run without setup.
//
// Safe for concurrent use.
type MockExecutor struct {
	mu      sync.Mutex
	scripts map[string]*script
	calls   map[string]int
}

type script struct {
	result    any
	err       error
	failFirst int
	fn        func(ctx context.Context, node flow.Node, vars map[string]any) (any, error)
}

// NewMockExecutor creates an empty mock.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		scripts: make(map[string]*script),
		calls:   make(map[string]int),
	}
}

// Returns scripts a fixed result for a node.
func (m *MockExecutor) Returns(nodeID string, result any) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[nodeID] = &script{result: result}
	return m
}

// Fails scripts a permanent error for a node.
func (m *MockExecutor) Fails(nodeID string, err error) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[nodeID] = &script{err: err}
	return m
}

// FailsThenReturns scripts a node to fail its first n attempts and then
// succeed with result, for exercising retry policies.
func (m *MockExecutor) FailsThenReturns(nodeID string, n int, result any) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[nodeID] = &script{failFirst: n, result: result}
	return m
}

// Does scripts an arbitrary function for a node.
func (m *MockExecutor) Does(nodeID string, fn func(ctx context.Context, node flow.Node, vars map[string]any) (any, error)) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[nodeID] = &script{fn: fn}
	return m
}

// Calls reports how many times a node has been executed.
func (m *MockExecutor) Calls(nodeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[nodeID]
}

// Execute implements flow.TaskExecutor.
func (m *MockExecutor) Execute(ctx context.Context, node flow.Node, vars map[string]any) (any, error) {
	m.mu.Lock()
	m.calls[node.ID]++
	count := m.calls[node.ID]
	s := m.scripts[node.ID]
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return map[string]any{"executed": node.ID}, nil
	}
	if s.fn != nil {
		return s.fn(ctx, node, vars)
	}
	if s.err != nil {
		return nil, s.err
	}
	if count <= s.failFirst {
		return nil, fmt.Errorf("scripted failure %d for node %s", count, node.ID)
	}
	return s.result, nil
}

// MockCaller is a scriptable flow.ServiceCaller for tests. Script a target
// with a response or an error; unscripted targets echo their payload.
type MockCaller struct {
	mu        sync.Mutex
	responses map[string]map[string]any
	errors    map[string]error
	calls     map[string]int
}

// NewMockCaller creates an empty mock.
func NewMockCaller() *MockCaller {
	return &MockCaller{
		responses: make(map[string]map[string]any),
		errors:    make(map[string]error),
		calls:     make(map[string]int),
	}
}

// Responds scripts a response for a target.
func (m *MockCaller) Responds(target string, response map[string]any) *MockCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[target] = response
	return m
}

// Fails scripts an error for a target.
func (m *MockCaller) Fails(target string, err error) *MockCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[target] = err
	return m
}

// Calls reports how many times a target has been called.
func (m *MockCaller) Calls(target string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[target]
}

// Call implements flow.ServiceCaller.
func (m *MockCaller) Call(ctx context.Context, target string, payload map[string]any) (map[string]any, error) {
	m.mu.Lock()
	m.calls[target]++
	err := m.errors[target]
	resp := m.responses[target]
	m.mu.Unlock()

	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}
	if resp != nil {
		return resp, nil
	}
	return map[string]any{"target": target, "payload": payload}, nil
}
