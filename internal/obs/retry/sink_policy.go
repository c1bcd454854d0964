package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// SinkPolicy is the retry policy for result emission. Any sink error is
// retryable; exhaustion is logged and the caller drops the sample.
func SinkPolicy(log *zap.Logger, attempts int, base, max time.Duration) Policy {
	if attempts <= 0 {
		attempts = 5
	}
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	return Policy{
		Name:     "sink_emit",
		Attempts: attempts,
		Backoff:  ExpoJitter{Base: base, Max: max, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("sink emit retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("sink emit retries exhausted", zap.Error(err))
			}
		},
	}
}
