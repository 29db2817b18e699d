package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/promo-scout/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		ReviewRateThreshold:     0.5,
		FailureBacklogThreshold: 10,
	})

	snap := &MetricsSnapshot{
		ResultsTotal: 100,
		Accepted:     70,
		NeedsReview:  20,
		ReviewRate:   0.2,
		FailureDepth: 3,
		BreakerState: "closed",
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_ReviewBacklog(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{ReviewRateThreshold: 0.5})

	snap := &MetricsSnapshot{
		ResultsTotal: 40,
		NeedsReview:  24,
		ReviewRate:   0.6,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertReviewBacklog, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "60.0%")
}

func TestAlerter_Evaluate_MinimumResultsRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{ReviewRateThreshold: 0.5})

	// Only 5 results, below the minimum sample for a rate alert.
	snap := &MetricsSnapshot{ResultsTotal: 5, NeedsReview: 5, ReviewRate: 1}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_FailureBacklog(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureBacklogThreshold: 10})

	alerts := a.Evaluate(&MetricsSnapshot{FailureDepth: 12, FailuresDue: 4})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureBacklog, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "12 escalation failures pending (4 due)")
}

func TestAlerter_Evaluate_ZeroThresholdsDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	snap := &MetricsSnapshot{ResultsTotal: 100, NeedsReview: 100, ReviewRate: 1, FailureDepth: 999}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		ReviewRateThreshold:     0.3,
		FailureBacklogThreshold: 5,
	})

	snap := &MetricsSnapshot{
		ResultsTotal: 50,
		NeedsReview:  25,
		ReviewRate:   0.5,
		FailureDepth: 6,
		BreakerState: "open",
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertReviewBacklog])
	assert.True(t, types[AlertFailureBacklog])
	assert.True(t, types[AlertBreakerOpen])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertReviewBacklog, Severity: "high", Message: "test alert 1"},
		{Type: AlertFailureBacklog, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertReviewBacklog, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertReviewBacklog, Message: "test"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
}
