// Package state keeps per-user views of the document store current through
// subscriptions, so reads do not go back to the backend.
package state

import (
	"context"
	"fmt"
	"sync"

	"tucano/internal/core"
	"tucano/internal/docstore"
	"tucano/internal/log"
	"tucano/internal/repository"
)

// Reconciler fills in missing recurring instances for a user.
type Reconciler interface {
	ReconcileUser(ctx context.Context, uid string) (int, error)
}

// Snapshot is a consistent copy of one user's data.
type Snapshot struct {
	Transactions   []core.Transaction
	Categories     map[core.CategoryType][]core.Category
	ShoppingLists  []core.ShoppingListDetail
	CreditSettings core.CreditCardSettings
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		Transactions:   append([]core.Transaction(nil), s.Transactions...),
		Categories:     make(map[core.CategoryType][]core.Category, len(s.Categories)),
		ShoppingLists:  make([]core.ShoppingListDetail, len(s.ShoppingLists)),
		CreditSettings: s.CreditSettings,
	}
	for typ, cats := range s.Categories {
		out.Categories[typ] = append([]core.Category(nil), cats...)
	}
	for i, l := range s.ShoppingLists {
		l.Items = append([]core.ShoppingListItem(nil), l.Items...)
		out.ShoppingLists[i] = l
	}
	return out
}

type part int

const (
	partTransactions part = iota
	partCategories
	partShoppingLists
	partCreditSettings
	partCount
)

// Container holds the live state of one user.
type Container struct {
	uid        string
	reconciler Reconciler
	logger     *log.Logger

	mu       sync.RWMutex
	snap     Snapshot
	seen     [partCount]bool
	ready    chan struct{}
	version  uint64
	changed  chan struct{}
	cancels  []func()
	closed   bool
	ctx      context.Context
	stop     context.CancelFunc
	inflight sync.WaitGroup
}

// Open subscribes to every partition of uid. The container is usable at
// once; WaitReady blocks until each partition has been delivered.
func Open(store docstore.Store, uid string, reconciler Reconciler, logger *log.Logger) (*Container, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	ctx, stop := context.WithCancel(context.Background())
	c := &Container{
		uid:        uid,
		reconciler: reconciler,
		logger:     logger.WithComponent(log.ComponentState),
		snap:       Snapshot{Categories: map[core.CategoryType][]core.Category{}},
		ready:      make(chan struct{}),
		changed:    make(chan struct{}),
		ctx:        ctx,
		stop:       stop,
	}

	subs := []struct {
		path string
		fn   func(docstore.Snapshot)
	}{
		{repository.TransactionsPath(uid), c.onTransactions},
		{repository.CategoriesPath(uid), c.onCategories},
		{repository.ShoppingListsPath(uid), c.onShoppingLists},
		{repository.CreditSettingsPath(uid), c.onCreditSettings},
	}
	for _, s := range subs {
		cancel, err := store.Subscribe(ctx, s.path, s.fn)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("subscribe %s: %w", s.path, err)
		}
		c.mu.Lock()
		c.cancels = append(c.cancels, cancel)
		c.mu.Unlock()
	}
	return c, nil
}

// UserID returns the owner of the container.
func (c *Container) UserID() string { return c.uid }

func (c *Container) apply(p part, fn func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	fn(&c.snap)
	c.version++
	close(c.changed)
	c.changed = make(chan struct{})
	if !c.seen[p] {
		c.seen[p] = true
		for _, ok := range c.seen {
			if !ok {
				return
			}
		}
		close(c.ready)
	}
}

func (c *Container) onTransactions(snap docstore.Snapshot) {
	txs, err := repository.DecodeTransactions(snap)
	if err != nil {
		c.logger.Warn("Skipped malformed transactions", log.FieldUserID, c.uid, log.FieldError, err)
	}
	c.reconcile()
	c.apply(partTransactions, func(s *Snapshot) { s.Transactions = txs })
}

func (c *Container) onCategories(snap docstore.Snapshot) {
	cats := make(map[core.CategoryType][]core.Category, 3)
	for _, typ := range []core.CategoryType{core.CategoryIncome, core.CategoryExpense, core.CategoryShopping} {
		cats[typ] = repository.DecodeCategories(snap.Child(string(typ)), typ)
	}
	c.apply(partCategories, func(s *Snapshot) { s.Categories = cats })
}

func (c *Container) onShoppingLists(snap docstore.Snapshot) {
	lists := repository.DecodeShoppingLists(snap)
	c.apply(partShoppingLists, func(s *Snapshot) { s.ShoppingLists = lists })
}

func (c *Container) onCreditSettings(snap docstore.Snapshot) {
	var settings core.CreditCardSettings
	if err := snap.Decode(&settings); err != nil {
		c.logger.Warn("Malformed credit card settings", log.FieldUserID, c.uid, log.FieldError, err)
	}
	settings = settings.WithDefaults()
	c.apply(partCreditSettings, func(s *Snapshot) { s.CreditSettings = settings })
}

// reconcile runs the projector in the background after a transactions
// delivery. Failures are logged only.
func (c *Container) reconcile() {
	if c.reconciler == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.inflight.Done()
		if _, err := c.reconciler.ReconcileUser(c.ctx, c.uid); err != nil && c.ctx.Err() == nil {
			c.logger.Error("Background reconciliation failed", log.FieldUserID, c.uid, log.FieldError, err)
		}
	}()
}

// WaitReady blocks until every partition was delivered once.
func (c *Container) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a deep copy of the current state.
func (c *Container) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.clone()
}

// Version counts the deliveries applied so far.
func (c *Container) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// WaitVersion blocks until the container moved past version v.
func (c *Container) WaitVersion(ctx context.Context, v uint64) error {
	for {
		c.mu.RLock()
		cur, changed := c.version, c.changed
		c.mu.RUnlock()
		if cur > v {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels the subscriptions and waits for background work.
func (c *Container) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	c.stop()
	c.inflight.Wait()
	c.logger.Debug("State container closed", log.FieldUserID, c.uid)
}
