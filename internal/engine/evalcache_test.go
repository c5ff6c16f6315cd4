package engine

import "testing"

func TestEvalCacheStoreProbeRoundTrip(t *testing.T) {
	c := NewEvalCache(1)
	c.Store(0x1234, 57)

	got, ok := c.Probe(0x1234)
	if !ok {
		t.Fatal("expected a hit for a freshly stored entry")
	}
	if got != 57 {
		t.Errorf("eval = %d, want 57", got)
	}
}

func TestEvalCacheProbeMiss(t *testing.T) {
	c := NewEvalCache(1)
	if _, ok := c.Probe(0xABCD); ok {
		t.Fatal("expected a miss on an empty cache")
	}
}

func TestEvalCacheCollisionOverwritesSlot(t *testing.T) {
	c := NewEvalCache(1)
	// Two keys that share a slot (same low bits, since the mask only
	// examines the bottom log2(size) bits) must report a miss for the
	// evicted one rather than a stale hit.
	size := uint64(len(c.entries))
	c.Store(1, 10)
	c.Store(1+size, 20)

	got, ok := c.Probe(1 + size)
	if !ok || got != 20 {
		t.Errorf("Probe(1+size) = (%d, %v), want (20, true)", got, ok)
	}
	if _, ok := c.Probe(1); ok {
		t.Error("expected the first key to have been evicted by the colliding second store")
	}
}

func TestEvalCacheClear(t *testing.T) {
	c := NewEvalCache(1)
	c.Store(7, 100)
	c.Clear()
	if _, ok := c.Probe(7); ok {
		t.Fatal("expected no entry after Clear")
	}
}
