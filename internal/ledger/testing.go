package ledger

import (
	"context"
	"encoding/json"
)

// Seed is a test helper that writes records straight into a backend, bypassing
// the collection invariants.
func Seed[T any](b Backend, kind Kind, records []T) {
	doc, err := json.Marshal(records)
	if err != nil {
		panic(err)
	}
	if err := b.Save(context.Background(), kind, doc); err != nil {
		panic(err)
	}
}
