package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultKafkaPolicy is used by the outbox runner when publishing events.
// It retries for up to about a minute; permanent errors stop at once and the
// message stays pending for the next pick.
func DefaultKafkaPolicy(log *zap.Logger) Policy {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("policy", "outbox_publish"))
	return Policy{
		Name:     "outbox_publish",
		Attempts: 6,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return !IsPermanent(err) && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			log.Warn("publish attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		},
		OnExhaust: func(err error) {
			if IsPermanent(err) {
				log.Error("publish rejected", zap.Error(err))
				return
			}
			log.Error("publish retries exhausted", zap.Error(err))
		},
	}
}
