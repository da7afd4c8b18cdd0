package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tucano/internal/core"
	"tucano/internal/docstore"
)

func categoryTypePath(uid string, typ core.CategoryType) string {
	return docstore.JoinPath(CategoriesPath(uid), string(typ))
}

// DecodeCategories reads a categories/{uid}/{type} snapshot sorted by name.
func DecodeCategories(snap docstore.Snapshot, typ core.CategoryType) []core.Category {
	keys := snap.Keys()
	out := make([]core.Category, 0, len(keys))
	for _, id := range keys {
		var c core.Category
		if err := snap.Child(id).Decode(&c); err != nil {
			continue
		}
		c.ID = id
		c.Type = typ
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Repository) ListCategories(ctx context.Context, uid string, typ core.CategoryType) ([]core.Category, error) {
	if err := checkUser(uid); err != nil {
		return nil, err
	}
	if !typ.Valid() {
		return nil, &core.ValidationError{Field: "type", Err: core.ErrInvalidType}
	}
	snap, err := r.store.Get(ctx, categoryTypePath(uid, typ))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return DecodeCategories(snap, typ), nil
}

// EnsureDefaultCategories seeds the default names of typ when the user has
// none, and returns the resulting list.
func (r *Repository) EnsureDefaultCategories(ctx context.Context, uid string, typ core.CategoryType) ([]core.Category, error) {
	cats, err := r.ListCategories(ctx, uid, typ)
	if err != nil || len(cats) > 0 {
		return cats, err
	}
	names := core.DefaultCategories(typ)
	if len(names) == 0 {
		return cats, nil
	}
	fields := make(map[string]any, len(names))
	for _, name := range names {
		id := r.newID()
		fields[id] = core.Category{ID: id, Name: name, Type: typ}
	}
	if err := r.store.Update(ctx, categoryTypePath(uid, typ), fields); err != nil {
		return nil, fmt.Errorf("seed categories: %w", err)
	}
	r.logger.InfoContext(ctx, "Seeded default categories", "user_id", uid, "type", typ, "count", len(names))
	return r.ListCategories(ctx, uid, typ)
}

func findByName(cats []core.Category, name, exceptID string) bool {
	for _, c := range cats {
		if c.ID != exceptID && strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// CreateCategory stores c. Names are unique per user and type.
func (r *Repository) CreateCategory(ctx context.Context, uid string, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	cats, err := r.ListCategories(ctx, uid, c.Type)
	if err != nil {
		return core.Category{}, err
	}
	if findByName(cats, c.Name, "") {
		return core.Category{}, fmt.Errorf("category %q: %w", c.Name, ErrConflict)
	}
	c.ID = r.newID()
	if err := r.store.Set(ctx, docstore.JoinPath(categoryTypePath(uid, c.Type), c.ID), c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *Repository) RenameCategory(ctx context.Context, uid string, typ core.CategoryType, id, name string) (core.Category, error) {
	if err := checkID(id); err != nil {
		return core.Category{}, err
	}
	c := core.Category{ID: id, Name: strings.TrimSpace(name), Type: typ}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	cats, err := r.ListCategories(ctx, uid, typ)
	if err != nil {
		return core.Category{}, err
	}
	found := false
	for _, existing := range cats {
		if existing.ID == id {
			found = true
		}
	}
	if !found {
		return core.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if findByName(cats, c.Name, id) {
		return core.Category{}, fmt.Errorf("category %q: %w", c.Name, ErrConflict)
	}
	path := docstore.JoinPath(categoryTypePath(uid, typ), id)
	if err := r.store.Update(ctx, path, map[string]any{"name": c.Name}); err != nil {
		return core.Category{}, fmt.Errorf("rename category: %w", err)
	}
	return c, nil
}

func (r *Repository) DeleteCategory(ctx context.Context, uid string, typ core.CategoryType, id string) error {
	if err := checkUser(uid); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	path := docstore.JoinPath(categoryTypePath(uid, typ), id)
	snap, err := r.store.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if !snap.Exists {
		return fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err := r.store.Remove(ctx, path); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}
