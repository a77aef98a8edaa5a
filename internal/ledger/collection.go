package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Collection is an ordered, whole-document record collection of a single kind.
// Read-modify-write cycles are serialised per collection so concurrent writers
// in the same process cannot lose each other's updates.
type Collection[T any] struct {
	backend Backend
	kind    Kind
	key     func(T) string
	limit   int

	mu sync.Mutex
}

// NewCollection binds a collection to a backend. key derives the lookup key of a
// record; limit > 0 caps the collection, evicting the oldest records first.
func NewCollection[T any](backend Backend, kind Kind, key func(T) string, limit int) *Collection[T] {
	return &Collection[T]{backend: backend, kind: kind, key: key, limit: limit}
}

// Kind reports which collection this is.
func (c *Collection[T]) Kind() Kind {
	return c.kind
}

// LoadAll returns every record in insertion order.
func (c *Collection[T]) LoadAll(ctx context.Context) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// SaveAll replaces the whole collection.
func (c *Collection[T]) SaveAll(ctx context.Context, records []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(ctx, records)
}

// Append adds a record at the end of the collection.
func (c *Collection[T]) Append(ctx context.Context, record T) error {
	return c.Mutate(ctx, func(records []T) ([]T, error) {
		return append(records, record), nil
	})
}

// Mutate loads the collection, applies fn and saves the result while holding the
// collection lock. Nothing is written when fn returns an error.
func (c *Collection[T]) Mutate(ctx context.Context, fn func([]T) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load(ctx)
	if err != nil {
		return err
	}
	updated, err := fn(records)
	if err != nil {
		return err
	}
	return c.save(ctx, updated)
}

// FindByKey returns the most recent record whose key equals key.
func (c *Collection[T]) FindByKey(ctx context.Context, key string) (T, bool, error) {
	return c.Find(ctx, func(record T) bool { return c.key(record) == key })
}

// Find returns the most recent record matching match.
func (c *Collection[T]) Find(ctx context.Context, match func(T) bool) (T, bool, error) {
	var zero T
	records, err := c.LoadAll(ctx)
	if err != nil {
		return zero, false, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if match(records[i]) {
			return records[i], true, nil
		}
	}
	return zero, false, nil
}

func (c *Collection[T]) load(ctx context.Context) ([]T, error) {
	doc, err := c.backend.Load(ctx, c.kind)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c.kind, err)
	}
	records := []T{}
	if len(bytes.TrimSpace(doc)) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(doc, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.kind, err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

func (c *Collection[T]) save(ctx context.Context, records []T) error {
	if records == nil {
		records = []T{}
	}
	if c.limit > 0 && len(records) > c.limit {
		records = records[len(records)-c.limit:]
	}
	doc, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.kind, err)
	}
	if err := c.backend.Save(ctx, c.kind, doc); err != nil {
		return fmt.Errorf("save %s: %w", c.kind, err)
	}
	return nil
}
