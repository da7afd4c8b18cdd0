package docstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"tucano/internal/log"
)

// Backend persists partition documents. Each partition is one JSON document
// keyed by its first PartitionDepth path segments.
type Backend interface {
	// Load returns every partition at or below prefix.
	Load(ctx context.Context, prefix string) (map[string][]byte, error)
	// Modify atomically replaces the partitions below prefix with the result
	// of fn. Keys missing from the result are deleted.
	Modify(ctx context.Context, prefix string, fn func(current map[string][]byte) (map[string][]byte, error)) error
	Close() error
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DB implements Store on top of a Backend.
type DB struct {
	backend Backend
	logger  *log.Logger

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	hooks  []ChangeHook
	closed bool
}

type Option func(*DB)

// WithLogger sets the logger used for delivery and hook diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(db *DB) { db.logger = l.WithComponent(log.ComponentDocstore) }
}

func New(backend Backend, opts ...Option) *DB {
	db := &DB{
		backend: backend,
		subs:    make(map[uint64]*subscription),
		logger:  log.New(log.DefaultConfig()).WithComponent(log.ComponentDocstore),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

var _ Store = (*DB)(nil)

func (db *DB) isClosed() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.closed
}

func (db *DB) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if db.isClosed() {
		return Snapshot{}, ErrClosed
	}
	return db.read(ctx, segs)
}

func (db *DB) read(ctx context.Context, segs []string) (Snapshot, error) {
	docs, err := db.backend.Load(ctx, PartitionPrefix(segs))
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s: %w", JoinPath(segs...), err)
	}
	root, err := assemble(docs)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Path: JoinPath(segs...)}
	snap.Value, snap.Exists = getAt(root, segs)
	return snap, nil
}

func (db *DB) Set(ctx context.Context, path string, value any) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	tree, err := Normalize(value)
	if err != nil {
		return err
	}
	op := OpSet
	if tree == nil {
		op = OpRemove
	}
	return db.write(ctx, segs, op, func(root map[string]any) {
		setAt(root, segs, tree)
	})
}

func (db *DB) Update(ctx context.Context, path string, fields map[string]any) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	type entry struct {
		segs  []string
		value any
	}
	entries := make([]entry, 0, len(fields))
	for k, v := range fields {
		rel, err := SplitPath(k)
		if err != nil {
			return err
		}
		tree, err := Normalize(v)
		if err != nil {
			return err
		}
		full := append(append([]string{}, segs...), rel...)
		entries = append(entries, entry{segs: full, value: tree})
	}
	return db.write(ctx, segs, OpUpdate, func(root map[string]any) {
		for _, e := range entries {
			setAt(root, e.segs, e.value)
		}
	})
}

func (db *DB) Remove(ctx context.Context, path string) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	return db.write(ctx, segs, OpRemove, func(root map[string]any) {
		setAt(root, segs, nil)
	})
}

func (db *DB) write(ctx context.Context, segs []string, op Op, apply func(map[string]any)) error {
	if db.isClosed() {
		return ErrClosed
	}
	prefix := PartitionPrefix(segs)
	err := db.backend.Modify(ctx, prefix, func(current map[string][]byte) (map[string][]byte, error) {
		root, err := assemble(current)
		if err != nil {
			return nil, err
		}
		apply(root)
		return partitions(root, prefix)
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, JoinPath(segs...), err)
	}

	c := Change{Path: JoinPath(segs...), Op: op}
	db.notify(segs)
	db.runHooks(ctx, c)
	return nil
}

func (db *DB) OnChange(hook ChangeHook) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.hooks = append(db.hooks, hook)
}

func (db *DB) runHooks(ctx context.Context, c Change) {
	db.mu.RLock()
	hooks := append([]ChangeHook(nil), db.hooks...)
	db.mu.RUnlock()
	for _, h := range hooks {
		h(ctx, c)
	}
}

// Ping reports backend health when the backend supports it.
func (db *DB) Ping(ctx context.Context) error {
	if db.isClosed() {
		return ErrClosed
	}
	if p, ok := db.backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	subs := db.subs
	db.subs = map[uint64]*subscription{}
	db.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	return db.backend.Close()
}

type subscription struct {
	segs   []string
	fn     func(Snapshot)
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) poke() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (db *DB) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	s := &subscription{
		segs:   segs,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil, ErrClosed
	}
	id := db.nextID
	db.nextID++
	db.subs[id] = s
	db.mu.Unlock()

	s.poke()
	go db.deliver(ctx, s)

	cancel := func() {
		db.mu.Lock()
		delete(db.subs, id)
		db.mu.Unlock()
		s.stop()
	}
	return cancel, nil
}

func (db *DB) deliver(ctx context.Context, s *subscription) {
	var last []byte
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.signal:
		}

		snap, err := db.read(ctx, s.segs)
		if err != nil {
			db.logger.ErrorContext(ctx, "Subscription read failed", "path", JoinPath(s.segs...), "error", err)
			continue
		}
		b, err := snap.JSON()
		if err != nil {
			db.logger.ErrorContext(ctx, "Subscription encode failed", "path", snap.Path, "error", err)
			continue
		}
		if !first && bytes.Equal(b, last) {
			continue
		}
		first = false
		last = b

		select {
		case <-s.done:
			return
		default:
		}
		s.fn(snap)
	}
}

func (db *DB) notify(segs []string) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, s := range db.subs {
		if related(segs, s.segs) {
			s.poke()
		}
	}
}
