package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/example/networking-rounds/internal/persistence"
)

func TestStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()

	if _, err := store.Get(ctx, "a"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	value := []byte("one")
	if err := store.Set(ctx, "a/1", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value[0] = 'X'
	got, err := store.Get(ctx, "a/1")
	if err != nil || string(got) != "one" {
		t.Fatalf("store must copy values, got %q, %v", got, err)
	}

	_ = store.Set(ctx, "a/0", []byte("zero"))
	_ = store.Set(ctx, "b/0", []byte("other"))

	entries, err := store.GetByPrefix(ctx, "a/")
	if err != nil || len(entries) != 2 || entries[0].Key != "a/0" {
		t.Fatalf("unexpected prefix scan %+v, %v", entries, err)
	}

	if err := store.Delete(ctx, "a/0"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", store.Len())
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := store.Set(cancelled, "c", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
