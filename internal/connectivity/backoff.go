package connectivity

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default reconnect delays: 1s, 2s, 4s, 8s, then 10s forever.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 10 * time.Second
)

// BackoffPolicy computes reconnect delays: min(Initial * 2^attempt, Max).
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff returns the 1s..10s policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Initial: DefaultInitialDelay, Max: DefaultMaxDelay}
}

func (p BackoffPolicy) withDefaults() BackoffPolicy {
	if p.Initial <= 0 {
		p.Initial = DefaultInitialDelay
	}
	if p.Max <= 0 {
		p.Max = DefaultMaxDelay
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	return p
}

// Delay returns the delay before the reconnect made after attempt
// consecutive failures. Negative attempts are treated as zero.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.Max
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 0; i < attempt && d < p.Max; i++ {
		d = b.NextBackOff()
	}
	return d
}
