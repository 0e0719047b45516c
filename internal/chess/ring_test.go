package chess

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	if r.Len() != 3 || r.Cap() != 3 {
		t.Fatalf("len=%d cap=%d", r.Len(), r.Cap())
	}
	if diff := cmp.Diff([]int{3, 4, 5}, r.Items()); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if last, ok := r.Last(); !ok || last != 5 {
		t.Fatalf("Last = %d, %v", last, ok)
	}
	if diff := cmp.Diff([]int{4, 5}, r.Tail(2)); diff != "" {
		t.Fatalf("tail mismatch (-want +got):\n%s", diff)
	}
}

func TestRingDefaultCapacity(t *testing.T) {
	r := NewRing[string](0)
	for i := 0; i < 150; i++ {
		r.Push("x")
	}
	if r.Len() != DefaultHistoryCapacity {
		t.Fatalf("expected %d entries, got %d", DefaultHistoryCapacity, r.Len())
	}
}

func TestRingReset(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	r.Reset()
	if r.Len() != 0 {
		t.Fatalf("expected empty ring")
	}
	if _, ok := r.Last(); ok {
		t.Fatalf("Last on empty ring")
	}
	r.Push(7)
	if diff := cmp.Diff([]int{7}, r.Items()); diff != "" {
		t.Fatalf("items mismatch: %s", diff)
	}
}
