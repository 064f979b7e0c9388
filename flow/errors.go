package flow

import (
	"errors"
	"strings"
)

// ErrorKind classifies engine and validation failures. Only
// ErrExecutorFailure, ErrServiceFailure, and ErrTimeout are recoverable and
// subject to a node's retry policy; every other kind is surfaced
// immediately.
type ErrorKind string

const (
	// ErrInvalidDefinition reports a structural or validation failure.
	// Caller error; never retried.
	ErrInvalidDefinition ErrorKind = "INVALID_DEFINITION"
	// ErrExecutorFailure reports a TaskExecutor failure. Recoverable.
	ErrExecutorFailure ErrorKind = "EXECUTOR_FAILURE"
	// ErrServiceFailure reports a ServiceCaller failure. Recoverable.
	ErrServiceFailure ErrorKind = "SERVICE_FAILURE"
	// ErrTimeout reports that a node attempt exceeded its timeout.
	// Recoverable, distinct from permanent failure.
	ErrTimeout ErrorKind = "TIMEOUT_EXCEEDED"
	// ErrNoMatchingBranch reports a CONDITION node whose guards all
	// evaluated false with no else branch.
	ErrNoMatchingBranch ErrorKind = "NO_MATCHING_BRANCH"
	// ErrJoinedBranchFailed reports a JOIN whose incoming branch failed and
	// whose configuration does not tolerate partial failure.
	ErrJoinedBranchFailed ErrorKind = "JOINED_BRANCH_FAILED"
	// ErrLoopBoundExceeded reports a LOOP whose condition still held when
	// the mandatory maximum iteration count was reached.
	ErrLoopBoundExceeded ErrorKind = "LOOP_BOUND_EXCEEDED"
	// ErrApprovalRejected reports a HUMAN_APPROVAL node that received a
	// reject signal.
	ErrApprovalRejected ErrorKind = "APPROVAL_REJECTED"
	// ErrRunCancelled reports caller-initiated cancellation. Terminal and
	// not a defect.
	ErrRunCancelled ErrorKind = "RUN_CANCELLED"
	// ErrTemplateNotFound reports an unknown template name.
	ErrTemplateNotFound ErrorKind = "TEMPLATE_NOT_FOUND"
	// ErrMissingParameter reports a template instantiation missing a
	// required parameter.
	ErrMissingParameter ErrorKind = "MISSING_PARAMETER"
)

// Retryable reports whether failures of this kind are subject to a node's
// retry policy.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrExecutorFailure, ErrServiceFailure, ErrTimeout:
		return true
	}
	return false
}

// Error is the structured error type used across the package. It carries
// the classification, the originating node when one exists, and the wrapped
// cause for errors.Is/As chains.
type Error struct {
	Kind    ErrorKind
	NodeID  string
	Message string
	Cause   error

	// Violations is populated for ErrInvalidDefinition so a caller sees
	// every problem at once.
	Violations []Violation
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.NodeID != "" {
		b.WriteString(": node ")
		b.WriteString(e.NodeID)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, v := range e.Violations {
		b.WriteString("\n  - ")
		b.WriteString(v.String())
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the ErrorKind from err, walking the wrap chain. Errors
// outside this package report the empty kind.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// invalidDefinition wraps a violation list into an ErrInvalidDefinition
// error.
func invalidDefinition(violations []Violation) *Error {
	return &Error{
		Kind:       ErrInvalidDefinition,
		Message:    "definition failed validation",
		Violations: violations,
	}
}
