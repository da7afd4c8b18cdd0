package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tucano/internal/core"
)

// TransactionStore is the slice of the repository the services need.
type TransactionStore interface {
	ListTransactions(ctx context.Context, uid string) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, uid, id string) (core.Transaction, error)
	SaveTransaction(ctx context.Context, uid string, t core.Transaction) error
	UpdateTransactions(ctx context.Context, uid string, txs []core.Transaction) error
	PatchTransaction(ctx context.Context, uid, id string, fields map[string]any) error
	DeleteTransactions(ctx context.Context, uid string, ids []string) error
	ReplaceTransactions(ctx context.Context, uid string, save []core.Transaction, remove []string) error
	GetCreditSettings(ctx context.Context, uid string) (core.CreditCardSettings, error)
	NewID() string
}

// Clock returns the current time.
type Clock func() time.Time

// maxParallelWrites bounds concurrent writes of one batch.
const maxParallelWrites = 8

// writeAll saves every transaction concurrently. Failed writes do not stop
// the others; the count of stored records and the joined errors are
// returned.
func writeAll(ctx context.Context, store TransactionStore, uid string, txs []core.Transaction) (int, error) {
	var (
		g       errgroup.Group
		written atomic.Int64
		mu      sync.Mutex
		errs    []error
	)
	g.SetLimit(maxParallelWrites)
	for _, t := range txs {
		g.Go(func() error {
			if err := store.SaveTransaction(ctx, uid, t); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("write %s: %w", t.Date, err))
				mu.Unlock()
				return err
			}
			written.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(written.Load()), errors.Join(errs...)
}
