package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/promo-scout/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the per-item hot path.
var preparedStatements = map[string]string{
	"result_exists":  `SELECT EXISTS (SELECT 1 FROM extraction_results WHERE source_id = $1)`,
	"save_result":    insertResultSQL + ` ON CONFLICT (source_id) DO NOTHING`,
	"append_failure": appendFailureSQL,
}

const insertResultSQL = `INSERT INTO extraction_results
	(source_id, candidates, confidence, status, enhanced_by_fallback, reasoning, recommendation, processed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const appendFailureSQL = `INSERT INTO escalation_failures
	(id, source_id, request, error, kind, transient, metadata, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
	  error = $4, kind = $5, retry_count = $8, next_retry_at = $10, last_failed_at = $12`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extraction_results (
	source_id            TEXT PRIMARY KEY,
	candidates           JSONB NOT NULL,
	confidence           DOUBLE PRECISION NOT NULL,
	status               TEXT NOT NULL,
	enhanced_by_fallback BOOLEAN NOT NULL DEFAULT false,
	reasoning            TEXT NOT NULL DEFAULT '',
	recommendation       TEXT NOT NULL DEFAULT '',
	processed_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_results_status ON extraction_results(status);

CREATE TABLE IF NOT EXISTS escalation_failures (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_id      TEXT NOT NULL,
	request        JSONB NOT NULL,
	error          TEXT NOT NULL,
	kind           TEXT NOT NULL,
	transient      BOOLEAN NOT NULL DEFAULT true,
	metadata       JSONB,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_failures_kind ON escalation_failures(kind);
CREATE INDEX IF NOT EXISTS idx_failures_next_retry ON escalation_failures(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Results

func (s *PostgresStore) Exists(ctx context.Context, sourceID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM extraction_results WHERE source_id = $1)`, sourceID,
	).Scan(&ok)
	return ok, eris.Wrapf(err, "postgres: exists %s", sourceID)
}

func (s *PostgresStore) SaveResult(ctx context.Context, r *model.ExtractionResult) (bool, error) {
	args, err := pgResultArgs(r)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, insertResultSQL+` ON CONFLICT (source_id) DO NOTHING`, args...)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: save result %s", r.SourceID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ReplaceResult(ctx context.Context, r *model.ExtractionResult) error {
	args, err := pgResultArgs(r)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, insertResultSQL+`
		ON CONFLICT (source_id) DO UPDATE SET
		  candidates = $2, confidence = $3, status = $4, enhanced_by_fallback = $5,
		  reasoning = $6, recommendation = $7, processed_at = $8`,
		args...,
	)
	return eris.Wrapf(err, "postgres: replace result %s", r.SourceID)
}

func pgResultArgs(r *model.ExtractionResult) ([]any, error) {
	candidates, err := json.Marshal(r.Candidates)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal candidates")
	}
	processed := r.ProcessedAt
	if processed.IsZero() {
		processed = time.Now()
	}
	return []any{
		r.SourceID, candidates, r.Confidence, string(r.Status),
		r.EnhancedByFallback, r.Reasoning, string(r.Recommendation), processed.UTC(),
	}, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.ExtractionResult, error) {
	query := `SELECT source_id, candidates, confidence, status, enhanced_by_fallback, reasoning, recommendation, processed_at
	          FROM extraction_results WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Enhanced != nil {
		query += fmt.Sprintf(` AND enhanced_by_fallback = $%d`, argIdx)
		args = append(args, *filter.Enhanced)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY processed_at DESC, source_id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []model.ExtractionResult
	for rows.Next() {
		var r model.ExtractionResult
		var candidates []byte
		var status, recommendation string
		if err := rows.Scan(&r.SourceID, &candidates, &r.Confidence, &status,
			&r.EnhancedByFallback, &r.Reasoning, &recommendation, &r.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		if err := json.Unmarshal(candidates, &r.Candidates); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal candidates")
		}
		r.Status = model.Status(status)
		r.Recommendation = model.Recommendation(recommendation)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

func (s *PostgresStore) Summarize(ctx context.Context) (*Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*), COUNT(*) FILTER (WHERE enhanced_by_fallback), COALESCE(SUM(confidence), 0)
		 FROM extraction_results GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summarize")
	}
	defer rows.Close()

	sum := newSummary()
	var total float64
	for rows.Next() {
		var status string
		var n, enhanced int
		var conf float64
		if err := rows.Scan(&status, &n, &enhanced, &conf); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		sum.ByStatus[model.Status(status)] = n
		sum.Total += n
		sum.Enhanced += enhanced
		total += conf
	}
	if sum.Total > 0 {
		sum.AvgConfidence = total / float64(sum.Total)
	}
	return sum, eris.Wrap(rows.Err(), "postgres: summarize iterate")
}

// Failure log

func (s *PostgresStore) AppendFailure(ctx context.Context, f *model.EscalationFailure) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	var meta []byte
	if len(f.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(f.Metadata); err != nil {
			return eris.Wrap(err, "postgres: marshal failure metadata")
		}
	}
	_, err := s.pool.Exec(ctx, appendFailureSQL,
		f.ID, f.SourceID, []byte(f.Request), f.Error, f.Kind, f.Transient, meta,
		f.RetryCount, f.MaxRetries, f.NextRetryAt, f.CreatedAt, f.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: append failure")
}

func (s *PostgresStore) ListFailures(ctx context.Context, filter model.FailureFilter) ([]model.EscalationFailure, error) {
	query := `SELECT id, source_id, request, error, kind, transient, metadata, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM escalation_failures WHERE true`
	args := []any{}
	argIdx := 1

	if filter.DueOnly {
		now := filter.Now
		if now.IsZero() {
			now = time.Now()
		}
		query += fmt.Sprintf(` AND next_retry_at <= $%d AND retry_count < max_retries`, argIdx)
		args = append(args, now.UTC())
		argIdx++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY next_retry_at ASC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failures")
	}
	defer rows.Close()

	var out []model.EscalationFailure
	for rows.Next() {
		var f model.EscalationFailure
		var request, meta []byte
		if err := rows.Scan(&f.ID, &f.SourceID, &request, &f.Error, &f.Kind, &f.Transient, &meta,
			&f.RetryCount, &f.MaxRetries, &f.NextRetryAt, &f.CreatedAt, &f.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		f.Request = json.RawMessage(request)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &f.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal failure metadata")
			}
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list failures iterate")
}

func (s *PostgresStore) IncrementFailureRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escalation_failures
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment failure retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "escalation failure %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveFailure(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM escalation_failures WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove failure")
}

func (s *PostgresStore) CountFailures(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escalation_failures`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count failures")
}
