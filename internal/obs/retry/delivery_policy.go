package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Permanent marks an error that retrying cannot fix.
type Permanent struct{ Err error }

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

func IsPermanent(err error) bool {
	var p *Permanent
	return errors.As(err, &p)
}

// DeliveryPolicy retries gateway sends a few times with a short backoff so a
// slow gateway cannot stall a tick for long.
func DeliveryPolicy(name string, attempts int, log *zap.Logger) Policy {
	if attempts <= 0 {
		attempts = 3
	}
	return Policy{
		Name:     name,
		Attempts: attempts,
		Backoff:  ExpoJitter{Base: 250 * time.Millisecond, Max: 2 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !IsPermanent(err) && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Debug("delivery attempt failed", zap.String("policy", name), zap.Int("attempt", i+1), zap.Error(err))
			}
		},
	}
}
