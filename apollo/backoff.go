// ABOUTME: Retry policy for provider calls
// ABOUTME: Turns a classified failure and attempt count into retry, abort, or fail decisions
package apollo

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Decision is what the caller should do after a failed attempt.
type Decision int

const (
	// DecisionRetry means wait the returned delay and try again.
	DecisionRetry Decision = iota
	// DecisionAbort means stop the whole batch (rate limit or cancellation).
	DecisionAbort
	// DecisionFail means give up on this call and report the error.
	DecisionFail
)

func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionAbort:
		return "abort"
	default:
		return "fail"
	}
}

// BackoffPolicy bounds retries of transient failures with a fixed delay.
type BackoffPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// Jitter spreads the delay uniformly over [Delay/2, Delay*3/2).
	Jitter bool
}

// DefaultBackoff is three attempts two seconds apart.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

// Decide classifies err after the given 1-based attempt.
func (p BackoffPolicy) Decide(attempt int, err error) (Decision, time.Duration) {
	// Per-request timeouts arrive classified as transient; a bare context error
	// means the caller gave up.
	if KindOf(err) == KindUnknown && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return DecisionAbort, 0
	}

	switch KindOf(err) {
	case KindRateLimited:
		return DecisionAbort, 0
	case KindTransient:
		if attempt < p.MaxAttempts {
			return DecisionRetry, p.delay()
		}
		return DecisionFail, 0
	default:
		return DecisionFail, 0
	}
}

func (p BackoffPolicy) delay() time.Duration {
	if !p.Jitter || p.Delay <= 0 {
		return p.Delay
	}
	return p.Delay/2 + time.Duration(rand.Int64N(int64(p.Delay)))
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
