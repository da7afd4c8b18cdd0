// Package repository maps Tucano records onto docstore paths, one partition
// per user and collection.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tucano/internal/docstore"
	"tucano/internal/log"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("already exists")
	ErrImport      = errors.New("could not import data")
	ErrInvalidUser = errors.New("invalid user id")
)

// Collection roots.
const (
	rootTransactions   = "transactions"
	rootCategories     = "categories"
	rootShoppingLists  = "shopping-lists"
	rootCreditSettings = "creditCardSettings"
)

func TransactionsPath(uid string) string   { return docstore.JoinPath(rootTransactions, uid) }
func ShoppingListsPath(uid string) string  { return docstore.JoinPath(rootShoppingLists, uid) }
func CreditSettingsPath(uid string) string { return docstore.JoinPath(rootCreditSettings, uid) }
func CategoriesPath(uid string) string     { return docstore.JoinPath(rootCategories, uid) }

type Repository struct {
	store  docstore.Store
	newID  func() string
	now    func() time.Time
	logger *log.Logger
}

type Option func(*Repository)

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Repository) { r.newID = fn }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(fn func() time.Time) Option {
	return func(r *Repository) { r.now = fn }
}

func WithLogger(l *log.Logger) Option {
	return func(r *Repository) { r.logger = l.WithComponent(log.ComponentRepository) }
}

func New(store docstore.Store, opts ...Option) *Repository {
	r := &Repository{
		store:  store,
		newID:  uuid.NewString,
		now:    time.Now,
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentRepository),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store exposes the underlying document store for subscriptions.
func (r *Repository) Store() docstore.Store { return r.store }

// NewID returns a fresh record identifier.
func (r *Repository) NewID() string { return r.newID() }

func singleSegment(s string) bool {
	segs, err := docstore.SplitPath(s)
	return err == nil && len(segs) == 1 && segs[0] == s
}

func checkUser(uid string) error {
	if !singleSegment(uid) {
		return fmt.Errorf("%w: %q", ErrInvalidUser, uid)
	}
	return nil
}

// checkID rejects ids that cannot name a record; they can never be found.
func checkID(id string) error {
	if !singleSegment(id) {
		return fmt.Errorf("%w: id %q", ErrNotFound, id)
	}
	return nil
}

func (r *Repository) get(ctx context.Context, path string, v any) (bool, error) {
	snap, err := r.store.Get(ctx, path)
	if err != nil {
		return false, err
	}
	if !snap.Exists {
		return false, nil
	}
	if err := snap.Decode(v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func (r *Repository) millis() int64 {
	return r.now().UnixMilli()
}
