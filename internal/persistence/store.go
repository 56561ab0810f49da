package persistence

import "context"

// Entry is a key and its raw encoded value.
type Entry struct {
	Key   string
	Value []byte
}

// Store is a durable keyed store. Each Set is atomic for its key; nothing is
// atomic across keys, and there is no compare-and-swap.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// GetByPrefix returns every entry whose key starts with prefix,
	// ordered by key.
	GetByPrefix(ctx context.Context, prefix string) ([]Entry, error)
}
