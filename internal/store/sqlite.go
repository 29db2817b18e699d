package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/promo-scout/internal/model"
)

// sqliteTime is a fixed-width UTC layout so stored timestamps compare
// correctly as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extraction_results (
	source_id            TEXT PRIMARY KEY,
	candidates           TEXT NOT NULL,
	confidence           REAL NOT NULL,
	status               TEXT NOT NULL,
	enhanced_by_fallback INTEGER NOT NULL DEFAULT 0,
	reasoning            TEXT NOT NULL DEFAULT '',
	recommendation       TEXT NOT NULL DEFAULT '',
	processed_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS escalation_failures (
	id             TEXT PRIMARY KEY,
	source_id      TEXT NOT NULL,
	request        TEXT NOT NULL,
	error          TEXT NOT NULL,
	kind           TEXT NOT NULL,
	transient      INTEGER NOT NULL DEFAULT 1,
	metadata       TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	last_failed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_status ON extraction_results(status);
CREATE INDEX IF NOT EXISTS idx_failures_kind ON escalation_failures(kind);
CREATE INDEX IF NOT EXISTS idx_failures_next_retry ON escalation_failures(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Results

func (s *SQLiteStore) Exists(ctx context.Context, sourceID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM extraction_results WHERE source_id = ?`, sourceID,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: exists %s", sourceID)
	}
	return n > 0, nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, r *model.ExtractionResult) (bool, error) {
	args, err := resultArgs(r)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO extraction_results
		 (source_id, candidates, confidence, status, enhanced_by_fallback, reasoning, recommendation, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: save result %s", r.SourceID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ReplaceResult(ctx context.Context, r *model.ExtractionResult) error {
	args, err := resultArgs(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_results
		 (source_id, candidates, confidence, status, enhanced_by_fallback, reasoning, recommendation, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_id) DO UPDATE SET
		   candidates = excluded.candidates, confidence = excluded.confidence,
		   status = excluded.status, enhanced_by_fallback = excluded.enhanced_by_fallback,
		   reasoning = excluded.reasoning, recommendation = excluded.recommendation,
		   processed_at = excluded.processed_at`,
		args...,
	)
	return eris.Wrapf(err, "sqlite: replace result %s", r.SourceID)
}

func resultArgs(r *model.ExtractionResult) ([]any, error) {
	candidates, err := json.Marshal(r.Candidates)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal candidates")
	}
	processed := r.ProcessedAt
	if processed.IsZero() {
		processed = time.Now()
	}
	return []any{
		r.SourceID, string(candidates), r.Confidence, string(r.Status),
		r.EnhancedByFallback, r.Reasoning, string(r.Recommendation),
		processed.UTC().Format(sqliteTime),
	}, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.ExtractionResult, error) {
	query := `SELECT source_id, candidates, confidence, status, enhanced_by_fallback, reasoning, recommendation, processed_at
	          FROM extraction_results WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Enhanced != nil {
		query += ` AND enhanced_by_fallback = ?`
		args = append(args, *filter.Enhanced)
	}
	query += ` ORDER BY processed_at DESC, source_id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ExtractionResult
	for rows.Next() {
		var r model.ExtractionResult
		var candidates, status, recommendation, processed string
		if err := rows.Scan(&r.SourceID, &candidates, &r.Confidence, &status,
			&r.EnhancedByFallback, &r.Reasoning, &recommendation, &processed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		if err := json.Unmarshal([]byte(candidates), &r.Candidates); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal candidates")
		}
		r.Status = model.Status(status)
		r.Recommendation = model.Recommendation(recommendation)
		if r.ProcessedAt, err = time.Parse(sqliteTime, processed); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse processed_at")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

func (s *SQLiteStore) Summarize(ctx context.Context) (*Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(enhanced_by_fallback), 0), COALESCE(SUM(confidence), 0)
		 FROM extraction_results GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summarize")
	}
	defer rows.Close() //nolint:errcheck

	sum := newSummary()
	var total float64
	for rows.Next() {
		var status string
		var n, enhanced int
		var conf float64
		if err := rows.Scan(&status, &n, &enhanced, &conf); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		sum.ByStatus[model.Status(status)] = n
		sum.Total += n
		sum.Enhanced += enhanced
		total += conf
	}
	if sum.Total > 0 {
		sum.AvgConfidence = total / float64(sum.Total)
	}
	return sum, eris.Wrap(rows.Err(), "sqlite: summarize iterate")
}

// Failure log

func (s *SQLiteStore) AppendFailure(ctx context.Context, f *model.EscalationFailure) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal failure metadata")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO escalation_failures
		 (id, source_id, request, error, kind, transient, metadata, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, kind = excluded.kind, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		f.ID, f.SourceID, string(f.Request), f.Error, f.Kind, f.Transient, string(meta),
		f.RetryCount, f.MaxRetries,
		f.NextRetryAt.UTC().Format(sqliteTime),
		f.CreatedAt.UTC().Format(sqliteTime),
		f.LastFailedAt.UTC().Format(sqliteTime),
	)
	return eris.Wrap(err, "sqlite: append failure")
}

func (s *SQLiteStore) ListFailures(ctx context.Context, filter model.FailureFilter) ([]model.EscalationFailure, error) {
	query := `SELECT id, source_id, request, error, kind, transient, metadata, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM escalation_failures WHERE 1=1`
	var args []any

	if filter.DueOnly {
		now := filter.Now
		if now.IsZero() {
			now = time.Now()
		}
		query += ` AND next_retry_at <= ? AND retry_count < max_retries`
		args = append(args, now.UTC().Format(sqliteTime))
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filter.Kind)
	}
	query += ` ORDER BY next_retry_at ASC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failures")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.EscalationFailure
	for rows.Next() {
		var f model.EscalationFailure
		var request string
		var meta sql.NullString
		var next, created, last string
		if err := rows.Scan(&f.ID, &f.SourceID, &request, &f.Error, &f.Kind, &f.Transient, &meta,
			&f.RetryCount, &f.MaxRetries, &next, &created, &last); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		f.Request = json.RawMessage(request)
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &f.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal failure metadata")
			}
		}
		if err := parseTimes(sqliteTime, []string{next, created, last},
			&f.NextRetryAt, &f.CreatedAt, &f.LastFailedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list failures iterate")
}

func (s *SQLiteStore) IncrementFailureRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE escalation_failures
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt.UTC().Format(sqliteTime), lastErr, time.Now().UTC().Format(sqliteTime), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment failure retry %s", id)
	}
	return checkRowsAffected(res, "escalation failure", id)
}

func (s *SQLiteStore) RemoveFailure(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM escalation_failures WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove failure")
}

func (s *SQLiteStore) CountFailures(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalation_failures`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count failures")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func parseTimes(layout string, values []string, dst ...*time.Time) error {
	for i, v := range values {
		t, err := time.Parse(layout, v)
		if err != nil {
			return eris.Wrapf(err, "sqlite: parse time %q", v)
		}
		*dst[i] = t
	}
	return nil
}

// ErrNotFound is returned when an update targets a missing row.
var ErrNotFound = errors.New("not found")
