package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryConfig is the retry schedule for provider calls. Waits grow
// geometrically from InitialBackoff by Multiplier and are capped at
// MaxBackoff, without jitter.
type RetryConfig struct {
	// MaxAttempts counts the first call. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// OnRetry runs before each wait with the number of the failed attempt.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is three attempts with 1s then 2s waits.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	return c
}

// Wait returns the pause after failed attempt n (1-based).
func (c RetryConfig) Wait(n int) time.Duration {
	c = c.normalized()
	wait := c.InitialBackoff
	for i := 1; i < n; i++ {
		wait = time.Duration(float64(wait) * c.Multiplier)
		if wait >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(wait, c.MaxBackoff)
}

// Schedule lists every wait the config can produce, in order.
func (c RetryConfig) Schedule() []time.Duration {
	c = c.normalized()
	out := make([]time.Duration, 0, c.MaxAttempts-1)
	for n := 1; n < c.MaxAttempts; n++ {
		out = append(out, c.Wait(n))
	}
	return out
}

// DoVal calls fn until it succeeds, fails with an error Classify does not
// mark transient, runs out of attempts, or ctx ends. The last error is
// returned unchanged so callers can still classify it.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if attempt >= cfg.MaxAttempts || ctx.Err() != nil || !IsTransient(err) {
			return zero, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if !sleep(ctx, cfg.Wait(attempt)) {
			return zero, err
		}
	}
}

// sleep waits for d or until ctx ends, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RetryLogger returns an OnRetry hook that logs at Warn.
func RetryLogger(service, operation string) func(int, error) {
	log := zap.L().With(zap.String("component", "resilience"))
	return func(attempt int, err error) {
		log.Warn("retrying provider call",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("class", Classify(err).String()),
			zap.Error(err),
		)
	}
}
