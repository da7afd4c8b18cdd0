// Package postgres persists docstore partitions in PostgreSQL through pgxpool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tucano/internal/docstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Backend struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, applies migrations and returns the backend.
func Open(ctx context.Context, databaseURL string) (*Backend, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Backend{pool: pool}, nil
}

// NewStore opens the backend and wraps it in a docstore.
func NewStore(ctx context.Context, databaseURL string, opts ...docstore.Option) (*docstore.DB, error) {
	b, err := Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return docstore.New(b, opts...), nil
}

// Migrate runs the embedded migrations with the pgx/v5 migrate driver.
func Migrate(databaseURL string) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateURL switches the scheme to the one registered by the pgx/v5 driver.
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

const selectPartitions = `SELECT key, doc FROM partitions WHERE key = $1 OR starts_with(key, $2)`

func scanPartitions(rows pgx.Rows) (map[string][]byte, error) {
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var key, doc string
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		out[key] = []byte(doc)
	}
	return out, rows.Err()
}

func (b *Backend) Load(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := b.pool.Query(ctx, selectPartitions, prefix, prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("select partitions: %w", err)
	}
	return scanPartitions(rows)
}

// Modify serializes writers on the prefix with a transaction-scoped advisory
// lock, so a partition that does not exist yet is protected too.
func (b *Backend) Modify(ctx context.Context, prefix string, fn func(map[string][]byte) (map[string][]byte, error)) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, prefix); err != nil {
		return fmt.Errorf("lock %s: %w", prefix, err)
	}
	rows, err := tx.Query(ctx, selectPartitions+` FOR UPDATE`, prefix, prefix+"/")
	if err != nil {
		return fmt.Errorf("select partitions: %w", err)
	}
	current, err := scanPartitions(rows)
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for key := range current {
		if _, keep := next[key]; !keep {
			batch.Queue(`DELETE FROM partitions WHERE key = $1`, key)
		}
	}
	for key, doc := range next {
		if !docstore.UnderPrefix(key, prefix) {
			return fmt.Errorf("partition %s outside %s", key, prefix)
		}
		if old, ok := current[key]; ok && string(old) == string(doc) {
			continue
		}
		batch.Queue(`
			INSERT INTO partitions (key, doc, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
			key, string(doc))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write partitions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.DebugContext(ctx, "Partitions saved to PostgreSQL", "component", "storage", "prefix", prefix, "statements", batch.Len())
	return nil
}
