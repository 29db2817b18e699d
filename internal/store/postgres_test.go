package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/promo-scout/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_SaveResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)INSERT INTO extraction_results.*ON CONFLICT \(source_id\) DO NOTHING`).
		WithArgs("vid-1", pgxmock.AnyArg(), 0.787, "accepted", false, "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`ON CONFLICT \(source_id\) DO NOTHING`).
		WithArgs("vid-1", pgxmock.AnyArg(), 0.787, "accepted", false, "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	r := sampleResult("vid-1", model.StatusAccepted, 0.787)
	written, err := s.SaveResult(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = s.SaveResult(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(source_id\) DO UPDATE`).
		WithArgs("vid-2", pgxmock.AnyArg(), 0.8, "accepted", true, "why", "accept", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	r := sampleResult("vid-2", model.StatusAccepted, 0.8)
	r.EnhancedByFallback = true
	r.Reasoning = "why"
	r.Recommendation = model.RecommendAccept
	require.NoError(t, s.ReplaceResult(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Exists(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("vid-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.Exists(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	candidates, err := json.Marshal(sampleResult("x", model.StatusAccepted, 0).Candidates)
	require.NoError(t, err)
	processed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM extraction_results WHERE true AND status = \$1 ORDER BY processed_at DESC, source_id LIMIT \$2`).
		WithArgs("accepted", 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"source_id", "candidates", "confidence", "status", "enhanced_by_fallback", "reasoning", "recommendation", "processed_at",
		}).AddRow("vid-1", candidates, 0.9, "accepted", false, "", "", processed))

	results, err := s.ListResults(context.Background(), ResultFilter{Status: model.StatusAccepted})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "vid-1", results[0].SourceID)
	assert.Equal(t, []string{"SAVE20"}, results[0].Candidates.CodeValues())
	assert.Equal(t, processed, results[0].ProcessedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Summarize(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count", "enhanced", "sum"}).
			AddRow("accepted", 3, 1, 2.4).
			AddRow("rejected", 1, 0, 0.1))

	sum, err := s.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 3, sum.ByStatus[model.StatusAccepted])
	assert.Equal(t, 0, sum.ByStatus[model.StatusNeedsReview])
	assert.Equal(t, 1, sum.Enhanced)
	assert.InDelta(t, 0.625, sum.AvgConfidence, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	f := sampleFailure("f1", time.Now())
	mock.ExpectExec(`(?s)INSERT INTO escalation_failures.*ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("f1", "vid-f1", pgxmock.AnyArg(), f.Error, "transport", true, pgxmock.AnyArg(),
			0, 3, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.AppendFailure(context.Background(), f))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListFailures_Due(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`next_retry_at <= \$1 AND retry_count < max_retries AND kind = \$2 ORDER BY next_retry_at ASC LIMIT \$3`).
		WithArgs(now, "transport", 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source_id", "request", "error", "kind", "transient", "metadata",
			"retry_count", "max_retries", "next_retry_at", "created_at", "last_failed_at",
		}).AddRow("f1", "vid-1", []byte(`{"source_id":"vid-1"}`), "boom", "transport", true,
			[]byte(`{"scorer":"fake"}`), 1, 3, now, now, now))

	got, err := s.ListFailures(context.Background(), model.FailureFilter{DueOnly: true, Now: now, Kind: "transport", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fake", got[0].Metadata["scorer"])
	assert.Equal(t, 1, got[0].RetryCount)
	assert.JSONEq(t, `{"source_id":"vid-1"}`, string(got[0].Request))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementFailureRetry(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	next := time.Now().Add(time.Hour)

	mock.ExpectExec(`UPDATE escalation_failures`).
		WithArgs(next, "again", "f1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE escalation_failures`).
		WithArgs(next, "again", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.IncrementFailureRetry(context.Background(), "f1", next, "again"))
	err := s.IncrementFailureRetry(context.Background(), "missing", next, "again")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RemoveAndCountFailures(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM escalation_failures`).
		WithArgs("f1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM escalation_failures`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	require.NoError(t, s.RemoveFailure(context.Background(), "f1"))
	n, err := s.CountFailures(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExecError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO extraction_results`).
		WillReturnError(eris.New("connection lost"))

	_, err := s.SaveResult(context.Background(), sampleResult("vid-1", model.StatusAccepted, 0.5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: save result vid-1")
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS extraction_results`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
