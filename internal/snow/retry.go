package snow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"snowgate/internal/metrics"
)

const (
	defaultMaxAttempts = 3
	baseBackoff        = 1 * time.Second
	maxBackoff         = 5 * time.Second
)

// Retryer reruns a failed upstream read a bounded number of times.
// Only transient failures (see IsTransient) are retried; auth and
// business errors propagate on the first attempt. Operations must be
// side-effect free from the caller's perspective so a repeat is safe.
type Retryer struct {
	MaxAttempts int
	Logger      *zap.Logger

	// sleep is replaced in tests to observe the backoff schedule.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryer(maxAttempts int, logger *zap.Logger) *Retryer {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{
		MaxAttempts: maxAttempts,
		Logger:      logger,
		sleep:       sleepCtx,
	}
}

// Do runs op up to MaxAttempts times. Between transient failures it
// waits base*2^(attempt-1), capped at 5s: 1s, 2s, 4s, 5s, 5s...
// A fatal error, or a transient error on the final attempt, propagates
// immediately.
func (r *Retryer) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				r.Logger.Info("upstream call recovered",
					zap.String("op", name),
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", r.MaxAttempts),
				)
			}
			return nil
		}

		r.Logger.Warn("upstream call failed",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.MaxAttempts),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)

		if !IsTransient(err) {
			return err
		}
		lastErr = err

		if attempt == r.MaxAttempts {
			break
		}

		metrics.UpstreamRetriesTotal.Inc()
		wait := backoffFor(attempt)
		r.Logger.Debug("backing off before retry",
			zap.String("op", name),
			zap.Duration("backoff", wait),
			zap.Int("next_attempt", attempt+1),
		)
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}

	return fmt.Errorf("snow: %s exhausted %d attempts: %w", name, r.MaxAttempts, lastErr)
}

// backoffFor returns the wait after the given 1-based attempt.
func backoffFor(attempt int) time.Duration {
	d := baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
