package resilience

import (
	"time"

	"github.com/sells-group/promo-scout/internal/config"
)

const (
	defaultRetryBase = 15 * time.Minute
	maxRetryDelay    = 24 * time.Hour
)

// NextRetryAt schedules the next attempt for a failure log entry that has
// already been retried retryCount times: base, 2*base, 4*base and so on,
// capped at one day.
func NextRetryAt(now time.Time, retryCount int, base time.Duration) time.Time {
	if base <= 0 {
		base = defaultRetryBase
	}
	delay := base
	for i := 0; i < retryCount && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return now.Add(min(delay, maxRetryDelay))
}

// PoliciesFrom derives the in-call retry policy and breaker settings from
// the escalation config; zero values keep the defaults.
func PoliciesFrom(cfg config.EscalationConfig) (RetryPolicy, BreakerConfig) {
	retry := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	breaker := DefaultBreakerConfig()
	if cfg.BreakerFailures > 0 {
		breaker.Threshold = cfg.BreakerFailures
	}
	if cfg.BreakerResetSecs > 0 {
		breaker.Cooldown = time.Duration(cfg.BreakerResetSecs) * time.Second
	}
	return retry, breaker
}
