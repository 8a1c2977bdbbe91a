// Package retry wraps adapter calls with bounded retries and exponential
// backoff. It is used around the network calls of the source, stage and
// target systems; the record store is never retried here.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Config controls the retry policy.
type Config struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failure.
	BaseDelay time.Duration
	// Multiplier scales the delay after each failure.
	Multiplier float64
	// Jitter adds up to 25% random extra delay to avoid thundering herds.
	Jitter bool
}

// DefaultConfig matches the configuration surface defaults: 3 attempts,
// 4 second base delay, doubling.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: 4 * time.Second, Multiplier: 2}
}

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	return c
}

// Do runs fn up to cfg.MaxAttempts times, sleeping between attempts. The
// last error is returned after exhaustion. Context cancellation cuts the
// wait short and returns the context error.
func Do(ctx context.Context, cfg Config, log *slog.Logger, name string, fn func(context.Context) error) error {
	_, err := DoValue(ctx, cfg, log, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for calls that produce a value, e.g. adapter counts.
func DoValue[T any](ctx context.Context, cfg Config, log *slog.Logger, name string, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	var zero T
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("call succeeded after retry", "call", name, "attempt", attempt)
			}
			return v, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter {
			wait += time.Duration(rand.Int63n(int64(delay)/4 + 1))
		}
		log.Warn("call failed, retrying",
			"call", name,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"wait", wait,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}

	log.Error("call failed permanently", "call", name, "attempts", cfg.MaxAttempts, "error", lastErr)
	return zero, lastErr
}
