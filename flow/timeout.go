package flow

import (
	"context"
	"fmt"
	"time"
)

// nodeTimeout resolves the timeout for one attempt of a node. Precedence:
// per-node override, then the engine default, then 0 (unlimited).
func nodeTimeout(n Node, defaultTimeout time.Duration) time.Duration {
	if n.Timeout > 0 {
		return n.Timeout
	}
	return defaultTimeout
}

// withNodeTimeout runs fn under the node's timeout. A deadline hit is
// translated into an ErrTimeout error, which the retry loop treats as
// recoverable; parent-context cancellation passes through untouched so the
// caller can distinguish cancellation from a slow attempt.
func withNodeTimeout(ctx context.Context, n Node, defaultTimeout time.Duration, fn func(context.Context) (any, error)) (any, error) {
	timeout := nodeTimeout(n, defaultTimeout)
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := fn(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return nil, &Error{
			Kind:    ErrTimeout,
			NodeID:  n.ID,
			Message: fmt.Sprintf("attempt exceeded timeout of %v", timeout),
			Cause:   err,
		}
	}
	return out, err
}
