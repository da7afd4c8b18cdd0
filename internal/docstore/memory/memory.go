// Package memory provides an in-process partition backend for docstore.
package memory

import (
	"context"
	"fmt"
	"sync"

	"tucano/internal/docstore"
)

// Backend keeps partition documents in a map.
type Backend struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func New() *Backend {
	return &Backend{docs: make(map[string][]byte)}
}

// NewStore returns a docstore backed by memory.
func NewStore(opts ...docstore.Option) *docstore.DB {
	return docstore.New(New(), opts...)
}

func (b *Backend) Load(ctx context.Context, prefix string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.collect(prefix), nil
}

func (b *Backend) collect(prefix string) map[string][]byte {
	out := make(map[string][]byte)
	for k, v := range b.docs {
		if docstore.UnderPrefix(k, prefix) {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out
}

func (b *Backend) Modify(ctx context.Context, prefix string, fn func(map[string][]byte) (map[string][]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := fn(b.collect(prefix))
	if err != nil {
		return err
	}
	for k := range next {
		if !docstore.UnderPrefix(k, prefix) {
			return fmt.Errorf("partition %s outside %s", k, prefix)
		}
	}
	for k := range b.docs {
		if docstore.UnderPrefix(k, prefix) {
			if _, keep := next[k]; !keep {
				delete(b.docs, k)
			}
		}
	}
	for k, v := range next {
		b.docs[k] = v
	}
	return nil
}

// Len reports how many partitions are stored.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs)
}

func (b *Backend) Close() error { return nil }
