package testfixtures

import (
	"sync"
	"testing"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	t.Parallel()

	gen := NewIDGenerator("match")
	if first, second := gen.Next(), gen.Next(); first != "match-1" || second != "match-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}

	gen.Reset()
	if next := NewIDGenerator("").Next(); next != "id-1" {
		t.Fatalf("expected default prefix, got %q", next)
	}
	if next := gen.NextFunc()(); next != "match-1" {
		t.Fatalf("expected match-1 after reset, got %q", next)
	}
}

func TestIDGeneratorIsSafeForConcurrentUse(t *testing.T) {
	t.Parallel()

	gen := NewIDGenerator("reg")
	seen := sync.Map{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, dup := seen.LoadOrStore(gen.Next(), true); dup {
					t.Errorf("duplicate identifier issued")
				}
			}
		}()
	}
	wg.Wait()

	if gen.Issued() != 400 {
		t.Fatalf("expected 400 identifiers, got %d", gen.Issued())
	}
}
