package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"tucano/internal/core"
	"tucano/internal/docstore"
)

// GetCreditSettings returns the user's card cycle, defaulting to closing day
// 6 and payment day 10.
func (r *Repository) GetCreditSettings(ctx context.Context, uid string) (core.CreditCardSettings, error) {
	if err := checkUser(uid); err != nil {
		return core.CreditCardSettings{}, err
	}
	var s core.CreditCardSettings
	if _, err := r.get(ctx, CreditSettingsPath(uid), &s); err != nil {
		return core.CreditCardSettings{}, fmt.Errorf("get credit settings: %w", err)
	}
	return s.WithDefaults(), nil
}

func (r *Repository) SaveCreditSettings(ctx context.Context, uid string, s core.CreditCardSettings) error {
	if err := checkUser(uid); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := r.store.Set(ctx, CreditSettingsPath(uid), s); err != nil {
		return fmt.Errorf("save credit settings: %w", err)
	}
	return nil
}

// Export is the downloadable backup of one user. Each partition is carried
// verbatim.
type Export struct {
	Categories    json.RawMessage `json:"categories"`
	ShoppingLists json.RawMessage `json:"shoppingLists"`
	Transactions  json.RawMessage `json:"transactions"`
}

var emptyObject = json.RawMessage(`{}`)

func (r *Repository) Export(ctx context.Context, uid string) (Export, error) {
	if err := checkUser(uid); err != nil {
		return Export{}, err
	}
	read := func(path string) (json.RawMessage, error) {
		snap, err := r.store.Get(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", path, err)
		}
		if !snap.Exists {
			return emptyObject, nil
		}
		return snap.JSON()
	}
	var out Export
	var err error
	if out.Categories, err = read(CategoriesPath(uid)); err != nil {
		return Export{}, err
	}
	if out.ShoppingLists, err = read(ShoppingListsPath(uid)); err != nil {
		return Export{}, err
	}
	if out.Transactions, err = read(TransactionsPath(uid)); err != nil {
		return Export{}, err
	}
	return out, nil
}

// Import writes each partition present in data verbatim, replacing what the
// user had. The whole document is checked first; malformed input returns
// ErrImport and nothing is written.
func (r *Repository) Import(ctx context.Context, uid string, data []byte) error {
	if err := checkUser(uid); err != nil {
		return err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return fmt.Errorf("%w: not a JSON object", ErrImport)
	}

	targets := []struct {
		key  string
		path string
	}{
		{"categories", CategoriesPath(uid)},
		{"shoppingLists", ShoppingListsPath(uid)},
		{"transactions", TransactionsPath(uid)},
	}
	writes := make(map[string]any, len(targets))
	for _, t := range targets {
		raw, ok := doc[t.key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		tree, err := docstore.Normalize(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrImport, t.key, err)
		}
		if tree != nil {
			if _, isObject := tree.(map[string]any); !isObject {
				return fmt.Errorf("%w: %s must be an object", ErrImport, t.key)
			}
		}
		writes[t.path] = tree
	}
	if err := r.checkImportedTransactions(writes[TransactionsPath(uid)]); err != nil {
		return err
	}

	for _, t := range targets {
		tree, ok := writes[t.path]
		if !ok {
			continue
		}
		if err := r.store.Set(ctx, t.path, tree); err != nil {
			return fmt.Errorf("import %s: %w", t.key, err)
		}
	}
	r.logger.InfoContext(ctx, "Data imported", "user_id", uid, "partitions", len(writes))
	return nil
}

// checkImportedTransactions makes sure every record decodes, so a bad file
// cannot poison later reads.
func (r *Repository) checkImportedTransactions(tree any) error {
	m, ok := tree.(map[string]any)
	if !ok {
		return nil
	}
	snap := docstore.Snapshot{Exists: true, Value: m}
	for _, id := range snap.Keys() {
		var t core.Transaction
		if err := snap.Child(id).Decode(&t); err != nil {
			return fmt.Errorf("%w: transaction %s: %v", ErrImport, id, err)
		}
	}
	return nil
}

// DeleteAll removes every partition of the user.
func (r *Repository) DeleteAll(ctx context.Context, uid string) error {
	if err := checkUser(uid); err != nil {
		return err
	}
	for _, path := range []string{
		CategoriesPath(uid),
		ShoppingListsPath(uid),
		TransactionsPath(uid),
		CreditSettingsPath(uid),
	} {
		if err := r.store.Remove(ctx, path); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
	}
	r.logger.InfoContext(ctx, "All user data deleted", "user_id", uid)
	return nil
}

// Users lists the ids of users holding transactions.
func (r *Repository) Users(ctx context.Context) ([]string, error) {
	snap, err := r.store.Get(ctx, rootTransactions)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return snap.Keys(), nil
}
