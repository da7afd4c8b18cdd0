package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"tucano/internal/core"
	"tucano/internal/docstore"
	"tucano/internal/log"
)

// DecodeTransactions reads every record of a transactions/{uid} snapshot,
// ordered by date then id. Records that fail to decode are skipped and
// reported in the returned error alongside the decoded ones.
func DecodeTransactions(snap docstore.Snapshot) ([]core.Transaction, error) {
	keys := snap.Keys()
	out := make([]core.Transaction, 0, len(keys))
	var errs []error
	for _, id := range keys {
		var t core.Transaction
		if err := snap.Child(id).Decode(&t); err != nil {
			errs = append(errs, fmt.Errorf("transaction %s: %w", id, err))
			continue
		}
		t.ID = id
		out = append(out, t)
	}
	SortTransactions(out)
	return out, errors.Join(errs...)
}

// SortTransactions orders by date, then id.
func SortTransactions(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if c := txs[i].Date.Compare(txs[j].Date); c != 0 {
			return c < 0
		}
		return txs[i].ID < txs[j].ID
	})
}

func (r *Repository) ListTransactions(ctx context.Context, uid string) ([]core.Transaction, error) {
	if err := checkUser(uid); err != nil {
		return nil, err
	}
	snap, err := r.store.Get(ctx, TransactionsPath(uid))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	txs, err := DecodeTransactions(snap)
	if err != nil {
		r.logger.WarnContext(ctx, "Skipped malformed transactions", log.FieldUserID, uid, log.FieldError, err)
	}
	return txs, nil
}

func (r *Repository) GetTransaction(ctx context.Context, uid, id string) (core.Transaction, error) {
	if err := checkUser(uid); err != nil {
		return core.Transaction{}, err
	}
	if err := checkID(id); err != nil {
		return core.Transaction{}, err
	}
	var t core.Transaction
	ok, err := r.get(ctx, docstore.JoinPath(TransactionsPath(uid), id), &t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	t.ID = id
	return t, nil
}

// SaveTransaction overwrites the record stored under t.ID.
func (r *Repository) SaveTransaction(ctx context.Context, uid string, t core.Transaction) error {
	if err := checkUser(uid); err != nil {
		return err
	}
	if err := checkID(t.ID); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := r.store.Set(ctx, docstore.JoinPath(TransactionsPath(uid), t.ID), t); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	return nil
}

// CreateTransaction assigns an id when missing and stores t.
func (r *Repository) CreateTransaction(ctx context.Context, uid string, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = r.newID()
	}
	if err := r.SaveTransaction(ctx, uid, t); err != nil {
		return core.Transaction{}, err
	}
	log.NewStructuredLogger(r.logger).LogTransactionCreated(ctx, uid, t.ID, t.Name, string(t.Type), t.Amount.Cents, t.Category)
	return t, nil
}

// UpdateTransaction replaces an existing record.
func (r *Repository) UpdateTransaction(ctx context.Context, uid string, t core.Transaction) error {
	if _, err := r.GetTransaction(ctx, uid, t.ID); err != nil {
		return err
	}
	return r.SaveTransaction(ctx, uid, t)
}

// UpdateTransactions writes several records in one atomic update.
func (r *Repository) UpdateTransactions(ctx context.Context, uid string, txs []core.Transaction) error {
	return r.ReplaceTransactions(ctx, uid, txs, nil)
}

// PatchTransaction merges fields into one existing record.
func (r *Repository) PatchTransaction(ctx context.Context, uid, id string, fields map[string]any) error {
	if _, err := r.GetTransaction(ctx, uid, id); err != nil {
		return err
	}
	if err := r.store.Update(ctx, docstore.JoinPath(TransactionsPath(uid), id), fields); err != nil {
		return fmt.Errorf("patch transaction: %w", err)
	}
	return nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, uid, id string) error {
	if _, err := r.GetTransaction(ctx, uid, id); err != nil {
		return err
	}
	if err := r.store.Remove(ctx, docstore.JoinPath(TransactionsPath(uid), id)); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// DeleteTransactions removes several records in one atomic update.
func (r *Repository) DeleteTransactions(ctx context.Context, uid string, ids []string) error {
	return r.ReplaceTransactions(ctx, uid, nil, ids)
}

// ReplaceTransactions writes save and removes the remove ids in one atomic
// update. Nothing is written when any record is invalid.
func (r *Repository) ReplaceTransactions(ctx context.Context, uid string, save []core.Transaction, remove []string) error {
	if err := checkUser(uid); err != nil {
		return err
	}
	if len(save) == 0 && len(remove) == 0 {
		return nil
	}
	fields := make(map[string]any, len(save)+len(remove))
	for _, t := range save {
		if err := checkID(t.ID); err != nil {
			return err
		}
		if err := t.Validate(); err != nil {
			return err
		}
		fields[t.ID] = t
	}
	for _, id := range remove {
		if err := checkID(id); err != nil {
			return err
		}
		fields[id] = nil
	}
	if err := r.store.Update(ctx, TransactionsPath(uid), fields); err != nil {
		return fmt.Errorf("write transactions: %w", err)
	}
	return nil
}
