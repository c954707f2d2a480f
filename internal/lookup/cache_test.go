package lookup

import (
	"testing"
	"time"
)

func TestCache_GetAfterPut(t *testing.T) {
	c := NewCache[string](time.Minute, 10)
	c.Put("a", "alpha")

	got, ok := c.Get("a")
	if !ok || got != "alpha" {
		t.Fatalf("expected alpha, got %q ok=%v", got, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestCache_ExpiryEvictsOnRead(t *testing.T) {
	c := NewCache[int](time.Minute, 10)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("k", 7)
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry removed, len=%d", c.Len())
	}
}

func TestCache_CapacityBound(t *testing.T) {
	c := NewCache[int](time.Minute, 3)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Put("d", 4)

	if c.Len() > 3 {
		t.Errorf("expected at most 3 entries, got %d", c.Len())
	}
	if got, ok := c.Get("d"); !ok || got != 4 {
		t.Errorf("newest entry must survive eviction, got %d ok=%v", got, ok)
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache[string](time.Minute, 10)
	c.Put("a", "alpha")
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected invalidated key to miss")
	}
}
