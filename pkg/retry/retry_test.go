package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnFatalError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		return NewFatalError(fmt.Errorf("bad request"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	onRetryCalls := 0
	err := RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		calls++
		return fmt.Errorf("still down")
	}, func(attempt int, err error, nextDelay time.Duration) {
		onRetryCalls++
		assert.LessOrEqual(t, nextDelay, 5*time.Millisecond)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, onRetryCalls)
}

func TestRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastPolicy(100), func() error {
		calls++
		return fmt.Errorf("down")
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestBridgePolicyDefaults(t *testing.T) {
	p := BridgePolicy(0, 0)
	assert.Equal(t, time.Second, p.InitialInterval)
	assert.Equal(t, 30*time.Second, p.MaxInterval)

	p = BridgePolicy(250*time.Millisecond, 10*time.Second)
	assert.Equal(t, 250*time.Millisecond, p.InitialInterval)
	assert.Equal(t, 10*time.Second, p.MaxInterval)
}

func TestDelayForCapsAtMaxInterval(t *testing.T) {
	p := Policy{
		InitialInterval: time.Second,
		MaxInterval:     4 * time.Second,
		Multiplier:      2.0,
	}

	assert.Equal(t, 2*time.Second, p.delayFor(1))
	assert.Equal(t, 4*time.Second, p.delayFor(2))
	assert.Equal(t, 4*time.Second, p.delayFor(10))
}
