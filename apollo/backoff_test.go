// ABOUTME: Tests for the retry policy decisions
// ABOUTME: Verifies abort on rate limit, bounded retries, and jitter bounds
package apollo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecideRateLimitedAborts(t *testing.T) {
	p := DefaultBackoff()
	d, delay := p.Decide(1, rateLimited("op", 429))
	assert.Equal(t, DecisionAbort, d)
	assert.Zero(t, delay)
}

func TestDecideTransientRetriesUntilBudget(t *testing.T) {
	p := DefaultBackoff()
	err := transient("op", 503, errors.New("unavailable"))

	d, delay := p.Decide(1, err)
	assert.Equal(t, DecisionRetry, d)
	assert.Equal(t, 2*time.Second, delay)

	d, _ = p.Decide(2, err)
	assert.Equal(t, DecisionRetry, d)

	d, _ = p.Decide(3, err)
	assert.Equal(t, DecisionFail, d)
}

func TestDecidePermanentFails(t *testing.T) {
	d, _ := DefaultBackoff().Decide(1, permanent("op", 404, nil))
	assert.Equal(t, DecisionFail, d)
}

func TestDecideCancellationAborts(t *testing.T) {
	d, _ := DefaultBackoff().Decide(1, fmt.Errorf("wrapped: %w", context.Canceled))
	assert.Equal(t, DecisionAbort, d)
}

func TestJitterBounds(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 5, Delay: 100 * time.Millisecond, Jitter: true}
	for i := 0; i < 50; i++ {
		_, delay := p.Decide(1, transient("op", 500, nil))
		assert.GreaterOrEqual(t, delay, 50*time.Millisecond)
		assert.Less(t, delay, 150*time.Millisecond)
	}
}

func TestErrorMessage(t *testing.T) {
	err := transient("fetch events", 502, errors.New("bad gateway"))
	err.Exhausted = true
	err.Attempts = 3
	assert.Equal(t, "fetch events: transient (HTTP 502) after 3 attempts: bad gateway", err.Error())
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}
