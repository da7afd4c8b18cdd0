package backend

import (
	"context"
	"fmt"

	"tucano/internal/docstore"
	"tucano/internal/docstore/memory"
	"tucano/internal/log"
	"tucano/internal/storage"
	"tucano/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store *docstore.DB
		err   error
	)
	opts := []docstore.Option{docstore.WithLogger(f.logger)}

	switch config.Type {
	case SQLiteBackend:
		store, err = storage.NewStore(config.SQLiteDBPath, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case PostgresBackend:
		store, err = postgres.NewStore(ctx, config.DatabaseURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
		}
		f.logger.Info("Initialized PostgreSQL backend")
	case MemoryBackend:
		store = memory.NewStore(opts...)
		f.logger.Warn("Initialized memory backend, data is lost on restart")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}
