package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promo-scout/internal/config"
)

// Backend bundles the configured sink and failure log.
type Backend struct {
	Sink     Sink
	Failures FailureLog

	closers []func() error
}

// Close releases every underlying handle.
func (b *Backend) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open connects the backend named by cfg.Driver and runs migrations. The
// xlsx driver writes results to a workbook and keeps the failure log in
// SQLite at DatabaseURL.
func Open(ctx context.Context, cfg config.StoreConfig) (*Backend, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close() //nolint:errcheck
			return nil, err
		}
		return &Backend{Sink: pg, Failures: pg, closers: []func() error{pg.Close}}, nil

	case "sqlite", "":
		lite, err := openSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Backend{Sink: lite, Failures: lite, closers: []func() error{lite.Close}}, nil

	case "xlsx":
		lite, err := openSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		book, err := NewXLSX(cfg.XLSXPath)
		if err != nil {
			lite.Close() //nolint:errcheck
			return nil, err
		}
		return &Backend{Sink: book, Failures: lite, closers: []func() error{book.Close, lite.Close}}, nil

	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func openSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	lite, err := NewSQLite(dsn)
	if err != nil {
		return nil, err
	}
	if err := lite.Migrate(ctx); err != nil {
		lite.Close() //nolint:errcheck
		return nil, err
	}
	return lite, nil
}
