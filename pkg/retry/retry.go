// Package retry runs fallible calls to remote collaborators under a bounded
// exponential backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop. Waits grow as Base, 2*Base, 4*Base... capped at Max,
// without jitter. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Base        time.Duration `yaml:"base"`
	Max         time.Duration `yaml:"max"`
}

var (
	// Generation mirrors five attempts waiting 2s, 4s, 8s, 10s.
	Generation = Policy{MaxAttempts: 5, Base: 2 * time.Second, Max: 10 * time.Second}
	OCR        = Policy{MaxAttempts: 3, Base: 2 * time.Second, Max: 10 * time.Second}
	Embedding  = Policy{MaxAttempts: 3, Base: time.Second, Max: 10 * time.Second}
)

// Notify is called before each wait with the attempt that just failed (1-based).
type Notify func(attempt int, err error, wait time.Duration)

// Permanent marks err as not worth retrying; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	return p
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.MaxInterval = p.Max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// Do calls op until it succeeds, returns a permanent error, the policy is
// exhausted, or ctx is done. The last error is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	p = p.withDefaults()
	attempt := 0
	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if notify != nil {
				notify(attempt, err, wait)
			}
		}),
	}
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		return op(ctx)
	}, opts...)
}
