package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tucano/internal/core"
	"tucano/internal/docstore"
)

// listRecord is the stored shape of a list: its fields plus the nested items.
type listRecord struct {
	core.ShoppingList
	Items map[string]core.ShoppingListItem `json:"items,omitempty"`
}

func (rec listRecord) detail(id string) core.ShoppingListDetail {
	d := core.ShoppingListDetail{ShoppingList: rec.ShoppingList}
	d.ID = id
	ids := make([]string, 0, len(rec.Items))
	for iid := range rec.Items {
		ids = append(ids, iid)
	}
	sort.Strings(ids)
	d.Items = make([]core.ShoppingListItem, 0, len(ids))
	for _, iid := range ids {
		it := rec.Items[iid]
		it.ID = iid
		d.Items = append(d.Items, it)
	}
	sortItems(d.Items)
	return d
}

// sortItems puts pending items first, then orders by name.
func sortItems(items []core.ShoppingListItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsPurchased != items[j].IsPurchased {
			return !items[i].IsPurchased
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
}

// DecodeShoppingLists reads a shopping-lists/{uid} snapshot, newest month
// first.
func DecodeShoppingLists(snap docstore.Snapshot) []core.ShoppingListDetail {
	keys := snap.Keys()
	out := make([]core.ShoppingListDetail, 0, len(keys))
	for _, id := range keys {
		var rec listRecord
		if err := snap.Child(id).Decode(&rec); err != nil {
			continue
		}
		out = append(out, rec.detail(id))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].MonthKey(), out[j].MonthKey()
		if a != b {
			return a > b
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func listPath(uid, id string) string {
	return docstore.JoinPath(ShoppingListsPath(uid), id)
}

func (r *Repository) ListShoppingLists(ctx context.Context, uid string) ([]core.ShoppingListDetail, error) {
	if err := checkUser(uid); err != nil {
		return nil, err
	}
	snap, err := r.store.Get(ctx, ShoppingListsPath(uid))
	if err != nil {
		return nil, fmt.Errorf("list shopping lists: %w", err)
	}
	return DecodeShoppingLists(snap), nil
}

func (r *Repository) GetShoppingList(ctx context.Context, uid, id string) (core.ShoppingListDetail, error) {
	if err := checkUser(uid); err != nil {
		return core.ShoppingListDetail{}, err
	}
	if err := checkID(id); err != nil {
		return core.ShoppingListDetail{}, err
	}
	var rec listRecord
	ok, err := r.get(ctx, listPath(uid, id), &rec)
	if err != nil {
		return core.ShoppingListDetail{}, fmt.Errorf("get shopping list: %w", err)
	}
	if !ok {
		return core.ShoppingListDetail{}, fmt.Errorf("shopping list %s: %w", id, ErrNotFound)
	}
	return rec.detail(id), nil
}

func (r *Repository) CreateShoppingList(ctx context.Context, uid string, l core.ShoppingList) (core.ShoppingList, error) {
	if err := checkUser(uid); err != nil {
		return core.ShoppingList{}, err
	}
	l.Name = strings.TrimSpace(l.Name)
	if err := l.Validate(); err != nil {
		return core.ShoppingList{}, err
	}
	l.ID = r.newID()
	l.Recompute(nil)
	l.CreatedAt = r.millis()
	l.UpdatedAt = l.CreatedAt
	if err := r.store.Set(ctx, listPath(uid, l.ID), listRecord{ShoppingList: l}); err != nil {
		return core.ShoppingList{}, fmt.Errorf("create shopping list: %w", err)
	}
	return l, nil
}

// UpdateShoppingList changes name, month, year and budget. Items and derived
// fields are left alone.
func (r *Repository) UpdateShoppingList(ctx context.Context, uid string, l core.ShoppingList) (core.ShoppingList, error) {
	cur, err := r.GetShoppingList(ctx, uid, l.ID)
	if err != nil {
		return core.ShoppingList{}, err
	}
	l.Name = strings.TrimSpace(l.Name)
	if err := l.Validate(); err != nil {
		return core.ShoppingList{}, err
	}
	updated := cur.ShoppingList
	updated.Name, updated.Month, updated.Year, updated.Budget = l.Name, l.Month, l.Year, l.Budget
	updated.UpdatedAt = r.millis()
	err = r.store.Update(ctx, listPath(uid, l.ID), map[string]any{
		"name":      updated.Name,
		"month":     updated.Month,
		"year":      updated.Year,
		"budget":    updated.Budget,
		"updatedAt": updated.UpdatedAt,
	})
	if err != nil {
		return core.ShoppingList{}, fmt.Errorf("update shopping list: %w", err)
	}
	return updated, nil
}

func (r *Repository) DeleteShoppingList(ctx context.Context, uid, id string) error {
	if _, err := r.GetShoppingList(ctx, uid, id); err != nil {
		return err
	}
	if err := r.store.Remove(ctx, listPath(uid, id)); err != nil {
		return fmt.Errorf("delete shopping list: %w", err)
	}
	return nil
}

// writeItems applies item changes and the recomputed list totals in a single
// update. A nil item removes it.
func (r *Repository) writeItems(ctx context.Context, uid string, cur core.ShoppingListDetail, changes map[string]*core.ShoppingListItem) (core.ShoppingListDetail, error) {
	byID := make(map[string]core.ShoppingListItem, len(cur.Items))
	for _, it := range cur.Items {
		byID[it.ID] = it
	}
	fields := make(map[string]any, len(changes)+4)
	for id, it := range changes {
		if it == nil {
			delete(byID, id)
			fields["items/"+id] = nil
			continue
		}
		byID[id] = *it
		fields["items/"+id] = *it
	}

	next := cur
	next.Items = make([]core.ShoppingListItem, 0, len(byID))
	for _, it := range byID {
		next.Items = append(next.Items, it)
	}
	sortItems(next.Items)
	next.Recompute(next.Items)
	next.UpdatedAt = r.millis()

	fields["spent"] = next.Spent
	fields["itemCount"] = next.ItemCount
	fields["isCompleted"] = next.IsCompleted
	fields["updatedAt"] = next.UpdatedAt
	if err := r.store.Update(ctx, listPath(uid, cur.ID), fields); err != nil {
		return core.ShoppingListDetail{}, fmt.Errorf("write items: %w", err)
	}
	return next, nil
}

func (r *Repository) AddItem(ctx context.Context, uid, listID string, it core.ShoppingListItem) (core.ShoppingListDetail, error) {
	cur, err := r.GetShoppingList(ctx, uid, listID)
	if err != nil {
		return core.ShoppingListDetail{}, err
	}
	it.Name = strings.TrimSpace(it.Name)
	if err := it.Validate(); err != nil {
		return core.ShoppingListDetail{}, err
	}
	it.ID = r.newID()
	return r.writeItems(ctx, uid, cur, map[string]*core.ShoppingListItem{it.ID: &it})
}

func findItem(d core.ShoppingListDetail, id string) (core.ShoppingListItem, bool) {
	for _, it := range d.Items {
		if it.ID == id {
			return it, true
		}
	}
	return core.ShoppingListItem{}, false
}

func (r *Repository) UpdateItem(ctx context.Context, uid, listID string, it core.ShoppingListItem) (core.ShoppingListDetail, error) {
	cur, err := r.GetShoppingList(ctx, uid, listID)
	if err != nil {
		return core.ShoppingListDetail{}, err
	}
	if _, ok := findItem(cur, it.ID); !ok {
		return core.ShoppingListDetail{}, fmt.Errorf("item %s: %w", it.ID, ErrNotFound)
	}
	it.Name = strings.TrimSpace(it.Name)
	if err := it.Validate(); err != nil {
		return core.ShoppingListDetail{}, err
	}
	return r.writeItems(ctx, uid, cur, map[string]*core.ShoppingListItem{it.ID: &it})
}

func (r *Repository) ToggleItem(ctx context.Context, uid, listID, itemID string) (core.ShoppingListDetail, error) {
	cur, err := r.GetShoppingList(ctx, uid, listID)
	if err != nil {
		return core.ShoppingListDetail{}, err
	}
	it, ok := findItem(cur, itemID)
	if !ok {
		return core.ShoppingListDetail{}, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	it.IsPurchased = !it.IsPurchased
	return r.writeItems(ctx, uid, cur, map[string]*core.ShoppingListItem{itemID: &it})
}

func (r *Repository) DeleteItem(ctx context.Context, uid, listID, itemID string) (core.ShoppingListDetail, error) {
	cur, err := r.GetShoppingList(ctx, uid, listID)
	if err != nil {
		return core.ShoppingListDetail{}, err
	}
	if _, ok := findItem(cur, itemID); !ok {
		return core.ShoppingListDetail{}, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	return r.writeItems(ctx, uid, cur, map[string]*core.ShoppingListItem{itemID: nil})
}
