// Package storage persists docstore partitions in SQLite.
package storage

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tucano/internal/docstore"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores one row per partition: the partition key and its JSON
// document.
type SQLiteBackend struct {
	db *sql.DB
}

// DSN builds the connection string for dbPath. Writers take the lock at BEGIN
// and wait for other processes instead of failing with SQLITE_BUSY.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// NewStore opens dbPath and wraps it in a docstore.
func NewStore(dbPath string, opts ...docstore.Option) (*docstore.DB, error) {
	b, err := NewSQLiteBackend(dbPath)
	if err != nil {
		return nil, err
	}
	return docstore.New(b, opts...), nil
}

func (r *SQLiteBackend) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteBackend) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Keys below prefix sort between "prefix/" and "prefix0" since '0'
// follows '/' in byte order.
const selectPartitions = `SELECT key, doc FROM partitions WHERE key = ? OR (key > ? AND key < ?)`

func loadPartitions(ctx context.Context, q querier, prefix string) (map[string][]byte, error) {
	rows, err := q.QueryContext(ctx, selectPartitions, prefix, prefix+"/", prefix+"0")
	if err != nil {
		return nil, fmt.Errorf("select partitions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var doc []byte
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		out[key] = doc
	}
	return out, rows.Err()
}

func (r *SQLiteBackend) Load(ctx context.Context, prefix string) (map[string][]byte, error) {
	return loadPartitions(ctx, r.db, prefix)
}

func (r *SQLiteBackend) Modify(ctx context.Context, prefix string, fn func(map[string][]byte) (map[string][]byte, error)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	current, err := loadPartitions(ctx, tx, prefix)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}

	written, deleted := 0, 0
	for key := range current {
		if _, keep := next[key]; keep {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM partitions WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete partition %s: %w", key, err)
		}
		deleted++
	}
	for key, doc := range next {
		if !docstore.UnderPrefix(key, prefix) {
			return fmt.Errorf("partition %s outside %s", key, prefix)
		}
		if old, ok := current[key]; ok && bytes.Equal(old, doc) {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO partitions (key, doc, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET doc = excluded.doc, updated_at = CURRENT_TIMESTAMP`,
			key, string(doc))
		if err != nil {
			return fmt.Errorf("upsert partition %s: %w", key, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.DebugContext(ctx, "Partitions saved to SQLite",
		"component", "storage",
		"prefix", prefix,
		"written", written,
		"deleted", deleted)
	return nil
}
