package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BridgePolicy is the reconnect schedule for the host bridge: it never
// gives up on its own, the loop stops through context cancellation when
// the client closes.
func BridgePolicy(initial, max time.Duration) Policy {
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return Policy{
		MaxAttempts:     math.MaxInt32,
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      2.0,
	}
}

// backOff builds the interval sequence for one retry run. A zero
// MaxElapsedTime means the run is bounded by attempts only.
func (p Policy) backOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime
	return exp
}

// delayFor reports the interval following the given attempt, capped at
// MaxInterval. Used by retry callbacks to log the upcoming wait.
func (p Policy) delayFor(attempt int) time.Duration {
	d := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(d)
}
