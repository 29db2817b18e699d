package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/promo-scout/internal/config"
	"github.com/sells-group/promo-scout/internal/resilience"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := newTestStore(t)
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1}
	checker := NewChecker(NewCollector(st, st, nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	st := newTestStore(t)
	checker := NewChecker(NewCollector(st, nil, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	st := newTestStore(t)
	cfg := config.MonitoringConfig{WebhookURL: ts.URL}
	checker := NewChecker(NewCollector(st, st, fixedBreaker(resilience.CircuitOpen)), NewAlerter(cfg), cfg)

	assert.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	checker := NewChecker(NewCollector(erringSink{}, nil, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Zero(t, checker.Check(context.Background()))
}
