package cache

import (
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](2, time.Minute)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to be present")
	}
	c.Set("c", 3, 0)

	if _, ok := c.Get("b"); ok {
		t.Errorf("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("expected a=1, got %v %v", v, ok)
	}
	if c.Len() != 2 {
		t.Errorf("expected len 2, got %d", c.Len())
	}
}

func TestLRUExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRU[string](4, time.Minute).WithClock(func() time.Time { return now })
	c.Set("k", "v", 10*time.Second)

	if _, ok := c.Get("k"); !ok {
		t.Fatalf("expected hit before expiry")
	}
	now = now.Add(11 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Errorf("expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed, len=%d", c.Len())
	}
}

func TestLRUUpdateDeletePurge(t *testing.T) {
	c := NewLRU[string](4, time.Minute)
	c.Set("k", "v1", 0)
	c.Set("k", "v2", 0)
	if v, _ := c.Get("k"); v != "v2" {
		t.Errorf("expected updated value, got %q", v)
	}
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Errorf("expected miss after delete")
	}
	c.Set("x", "1", 0)
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after purge")
	}
}
