package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/promo-scout/internal/model"
	"github.com/sells-group/promo-scout/internal/resilience"
	"github.com/sells-group/promo-scout/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func saveResult(t *testing.T, st *store.SQLiteStore, id string, status model.Status, conf float64, enhanced bool) {
	t.Helper()
	_, err := st.SaveResult(context.Background(), &model.ExtractionResult{
		SourceID:           id,
		Confidence:         conf,
		Status:             status,
		EnhancedByFallback: enhanced,
		ProcessedAt:        time.Now().UTC(),
	})
	require.NoError(t, err)
}

type fixedBreaker resilience.CircuitState

func (b fixedBreaker) BreakerState() resilience.CircuitState { return resilience.CircuitState(b) }

type erringSink struct{ store.Sink }

func (erringSink) Summarize(context.Context) (*store.Summary, error) {
	return nil, eris.New("db down")
}

func TestCollector_Collect(t *testing.T) {
	st := newTestStore(t)
	saveResult(t, st, "a", model.StatusAccepted, 0.9, false)
	saveResult(t, st, "b", model.StatusNeedsReview, 0.4, true)
	saveResult(t, st, "c", model.StatusNeedsReview, 0.35, false)
	saveResult(t, st, "d", model.StatusRejected, 0.1, false)

	now := time.Now().UTC()
	require.NoError(t, st.AppendFailure(context.Background(), &model.EscalationFailure{
		ID: "f1", SourceID: "b", Request: []byte(`{}`), Kind: "timeout",
		MaxRetries: 3, NextRetryAt: now.Add(-time.Minute), CreatedAt: now, LastFailedAt: now,
	}))
	require.NoError(t, st.AppendFailure(context.Background(), &model.EscalationFailure{
		ID: "f2", SourceID: "c", Request: []byte(`{}`), Kind: "timeout",
		MaxRetries: 3, NextRetryAt: now.Add(time.Hour), CreatedAt: now, LastFailedAt: now,
	}))

	c := NewCollector(st, st, fixedBreaker(resilience.CircuitOpen))
	snap, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, snap.ResultsTotal)
	assert.Equal(t, 1, snap.Accepted)
	assert.Equal(t, 2, snap.NeedsReview)
	assert.Equal(t, 1, snap.Rejected)
	assert.Equal(t, 1, snap.Enhanced)
	assert.InDelta(t, 0.5, snap.ReviewRate, 1e-9)
	assert.InDelta(t, 0.4375, snap.AvgConfidence, 1e-9)
	assert.Equal(t, 2, snap.FailureDepth)
	assert.Equal(t, 1, snap.FailuresDue)
	assert.Equal(t, "open", snap.BreakerState)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_Empty(t *testing.T) {
	st := newTestStore(t)

	snap, err := NewCollector(st, nil, nil).Collect(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.ResultsTotal)
	assert.Zero(t, snap.ReviewRate)
	assert.Zero(t, snap.FailureDepth)
	assert.Empty(t, snap.BreakerState)
}

func TestCollector_SinkError(t *testing.T) {
	_, err := NewCollector(erringSink{}, nil, nil).Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: summarize results")
}
