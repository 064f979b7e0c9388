package flow

import (
	"math/rand"
	"time"
)

// Backoff selects how the delay between retry attempts grows.
type Backoff string

const (
	// BackoffFixed waits BaseDelay between every attempt.
	BackoffFixed Backoff = "fixed"
	// BackoffLinear waits BaseDelay * attempt.
	BackoffLinear Backoff = "linear"
	// BackoffExponential waits BaseDelay * 2^(attempt-1), capped at
	// MaxDelay.
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy governs how a node is retried after a recoverable failure
// (executor failure, service failure, timeout). Non-recoverable error kinds
// are never retried regardless of policy.
type RetryPolicy struct {
	// MaxAttempts is the total number of execution attempts, including the
	// first. Must be >= 1; 1 means no retries.
	MaxAttempts int

	// Backoff selects the delay growth shape. Empty defaults to
	// BackoffExponential.
	Backoff Backoff

	// BaseDelay is the starting delay between attempts.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration
}

// Validate checks the policy's constraints: MaxAttempts >= 1, a known
// backoff shape, and MaxDelay >= BaseDelay when both are set.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return &Error{Kind: ErrInvalidDefinition, Message: "retry policy: MaxAttempts must be >= 1"}
	}
	switch rp.Backoff {
	case "", BackoffFixed, BackoffLinear, BackoffExponential:
	default:
		return &Error{Kind: ErrInvalidDefinition, Message: "retry policy: unknown backoff shape " + string(rp.Backoff)}
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return &Error{Kind: ErrInvalidDefinition, Message: "retry policy: MaxDelay must be >= BaseDelay"}
	}
	return nil
}

// delay computes the wait before retry number attempt (1-based: the delay
// taken after the attempt-th failed attempt). A jitter of up to half the
// base delay is added to avoid synchronized retry storms across concurrent
// branches.
func (rp *RetryPolicy) delay(attempt int) time.Duration {
	base := rp.BaseDelay
	if base <= 0 {
		return 0
	}

	var d time.Duration
	switch rp.Backoff {
	case BackoffFixed:
		d = base
	case BackoffLinear:
		d = base * time.Duration(attempt)
	default: // exponential
		if attempt > 30 {
			attempt = 30
		}
		d = base * (1 << (attempt - 1))
	}

	if rp.MaxDelay > 0 && d > rp.MaxDelay {
		d = rp.MaxDelay
	}

	// Jitter for retry timing, not security.
	jitter := time.Duration(rand.Int63n(int64(base)/2 + 1)) // #nosec G404
	return d + jitter
}
