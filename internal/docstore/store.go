// Package docstore is a path-addressed JSON document store with change
// subscriptions.
//
// Paths are slash separated ("transactions/u1/t1"). Values are JSON trees:
// objects, arrays, strings, numbers (kept as json.Number) and booleans. A nil
// value means "absent" and empty objects are pruned, so removing the last child
// of a node removes the node itself.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
)

var (
	ErrInvalidPath  = errors.New("invalid path")
	ErrInvalidValue = errors.New("invalid value")
	ErrClosed       = errors.New("store closed")
)

// Op is the kind of write that produced a Change.
type Op string

const (
	OpSet    Op = "set"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// Change describes one committed write.
type Change struct {
	Path string
	Op   Op
}

// ChangeHook runs after every committed write.
type ChangeHook func(ctx context.Context, c Change)

// Store is the document store contract used by the repository layer.
type Store interface {
	// Get reads the value at path once.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Set overwrites the value at path. A nil value removes it.
	Set(ctx context.Context, path string, value any) error
	// Update merges fields into the object at path. Keys may themselves be
	// relative paths; a nil field removes that child.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Remove deletes the value at path and everything below it.
	Remove(ctx context.Context, path string) error
	// Subscribe calls fn with the current value and again after every change
	// affecting path. Delivery is asynchronous and coalescing.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (cancel func(), err error)
	// OnChange registers a hook invoked after each committed write.
	OnChange(hook ChangeHook)
	Close() error
}

// Snapshot is the value found at a path at some instant.
type Snapshot struct {
	Path   string
	Exists bool
	Value  any
}

// Decode converts the snapshot value into v. A missing value leaves v
// untouched.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return nil
	}
	b, err := json.Marshal(s.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Keys returns the sorted child keys when the value is an object.
func (s Snapshot) Keys() []string {
	m, ok := s.Value.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Child returns the snapshot of a direct child.
func (s Snapshot) Child(key string) Snapshot {
	child := Snapshot{Path: s.Path + "/" + key}
	if m, ok := s.Value.(map[string]any); ok {
		if v, ok := m[key]; ok && v != nil {
			child.Exists = true
			child.Value = v
		}
	}
	return child
}

// JSON encodes the snapshot value, "null" when missing.
func (s Snapshot) JSON() ([]byte, error) {
	if !s.Exists {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}
