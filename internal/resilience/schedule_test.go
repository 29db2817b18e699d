package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/promo-scout/internal/config"
)

func TestNextRetryAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		count int
		base  time.Duration
		want  time.Duration
	}{
		{"first failure", 0, 10 * time.Minute, 10 * time.Minute},
		{"second", 1, 10 * time.Minute, 20 * time.Minute},
		{"third", 2, 10 * time.Minute, 40 * time.Minute},
		{"default base", 0, 0, 15 * time.Minute},
		{"capped", 20, time.Hour, 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, now.Add(tt.want), NextRetryAt(now, tt.count, tt.base))
		})
	}
}

func TestPoliciesFrom(t *testing.T) {
	retry, breaker := PoliciesFrom(config.EscalationConfig{MaxAttempts: 4, BreakerFailures: 2, BreakerResetSecs: 90})
	assert.Equal(t, 4, retry.MaxAttempts)
	assert.Equal(t, 5*time.Second, retry.OverloadBackoff)
	assert.Equal(t, 2, breaker.Threshold)
	assert.Equal(t, 90*time.Second, breaker.Cooldown)

	retry, breaker = PoliciesFrom(config.EscalationConfig{})
	assert.Equal(t, DefaultRetryPolicy().MaxAttempts, retry.MaxAttempts)
	assert.Equal(t, DefaultBreakerConfig().Threshold, breaker.Threshold)
}
