package ledger

import (
	"context"
	"sync"
)

type inMemoryBackend struct {
	mu        sync.RWMutex
	documents map[Kind][]byte
}

// NewInMemory creates a concurrency-safe in-memory backend useful for unit tests.
func NewInMemory() Backend {
	return &inMemoryBackend{documents: make(map[Kind][]byte)}
}

func (b *inMemoryBackend) Load(_ context.Context, kind Kind) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	doc, ok := b.documents[kind]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

func (b *inMemoryBackend) Save(_ context.Context, kind Kind, document []byte) error {
	stored := make([]byte, len(document))
	copy(stored, document)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.documents[kind] = stored
	return nil
}
