package cache

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore shares cached results between machines through a scan_cache table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and applies pending migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, sharedErrors.ErrMissingCacheDSN
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse cache dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect cache database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load cache migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply cache migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Entry, error) {
	var (
		raw       []byte
		expiresAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
        SELECT result, expires_at FROM scan_cache WHERE cache_key = $1
    `, key).Scan(&raw, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, sharedErrors.ErrCacheMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}

	var result scan.ScanResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", sharedErrors.ErrDeserializationFailed, err)
	}
	return Entry{Key: key, Result: result, ExpiresAt: expiresAt}, nil
}

func (s *PostgresStore) Set(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO scan_cache (cache_key, result, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (cache_key) DO UPDATE SET result = EXCLUDED.result, expires_at = EXCLUDED.expires_at
    `, entry.Key, raw, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM scan_cache WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM scan_cache`); err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
