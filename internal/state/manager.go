package state

import (
	"context"
	"time"

	"tucano/internal/cache"
	"tucano/internal/docstore"
	"tucano/internal/log"
)

// Manager hands out one container per user, keeping the recently used ones
// open. Containers pushed out of the cache are closed.
type Manager struct {
	store      docstore.Store
	reconciler Reconciler
	logger     *log.Logger
	containers *cache.LRUCache[*entry]
}

type entry struct {
	container *Container
	err       error
}

// Config sizes the container cache.
type Config struct {
	Size int
	TTL  time.Duration
}

func NewManager(store docstore.Store, reconciler Reconciler, cfg Config, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	m := &Manager{
		store:      store,
		reconciler: reconciler,
		logger:     logger.WithComponent(log.ComponentState),
	}
	m.containers = cache.NewLRUCache[*entry](cfg.Size, cfg.TTL,
		cache.WithEvictCallback[*entry](func(uid string, e *entry) {
			if e.container != nil {
				e.container.Close()
				m.logger.Debug("State container evicted", log.FieldUserID, uid)
			}
		}),
	)
	return m
}

// Get returns the ready container of uid, opening it on first use.
func (m *Manager) Get(ctx context.Context, uid string) (*Container, error) {
	e := m.containers.GetOrCreate(uid, func() *entry {
		c, err := Open(m.store, uid, m.reconciler, m.logger)
		return &entry{container: c, err: err}
	})
	if e.err != nil {
		m.containers.Delete(uid)
		return nil, e.err
	}
	if err := e.container.WaitReady(ctx); err != nil {
		return nil, err
	}
	return e.container, nil
}

// Cleaner exposes the cache to a cache.Manager for expiry sweeps.
func (m *Manager) Cleaner() cache.Cleaner {
	return m.containers
}

// Len is the number of open containers.
func (m *Manager) Len() int {
	return m.containers.Size()
}

// Close closes every container.
func (m *Manager) Close() {
	m.containers.Purge()
}
