package resilience

import "time"

// FromSettings builds a RetryConfig from configured values, keeping the
// default for any zero field.
func FromSettings(maxAttempts int, initialBackoff, maxBackoff time.Duration, multiplier float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoff > 0 {
		cfg.InitialBackoff = initialBackoff
	}
	if maxBackoff > 0 {
		cfg.MaxBackoff = maxBackoff
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	return cfg
}
