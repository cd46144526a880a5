// Package retry applies a bounded exponential-backoff policy to operations
// that fail transiently, such as deleting a file another process still
// holds open.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// Policy bounds the number of attempts and their spacing.
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultPolicy tries three times, waiting 500ms then 1s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2,
		MaxInterval:     5 * time.Second,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error or the policy is
// exhausted. The last error is returned.
func (p Policy) Do(ctx context.Context, log logrus.FieldLogger, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0

	attempt := 0

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++

		return struct{}{}, op()
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WithFields(logrus.Fields{
				"operation": name,
				"attempt":   attempt,
				"retry_in":  next,
			}).WithError(err).Debug("Operation failed, retrying")
		}),
	)

	return err
}
