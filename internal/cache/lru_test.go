package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("expected a=1, got %v %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Second)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire")
	}

	c.Set("x", "1")
	c.Set("y", "2")
	now = now.Add(2 * time.Second)
	if n := c.CleanExpired(); n != 2 {
		t.Errorf("expected 2 expired entries, got %d", n)
	}
}

func TestLRUCache_GetOrLoad(t *testing.T) {
	c := NewLRUCache[[]byte](4, time.Minute)
	calls := 0
	load := func(context.Context) ([]byte, error) {
		calls++
		return []byte("img"), nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(context.Background(), "asset-1", load)
		if err != nil || string(v) != "img" {
			t.Fatalf("unexpected result %q %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected a single load, got %d", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrLoad(context.Background(), "asset-2", func(context.Context) ([]byte, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Errorf("expected load error, got %v", err)
	}
	if _, ok := c.Get("asset-2"); ok {
		t.Error("errors must not be cached")
	}

	st := c.Stats()
	if st.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", st.Hits)
	}
}

func TestManager_CleanAll(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[int](10, time.Millisecond)
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	now = now.Add(time.Second)

	m := NewManager()
	m.Register("ints", c)
	if n := m.CleanAll(context.Background()); n != 1 {
		t.Errorf("expected 1 cleaned entry, got %d", n)
	}

	m.StartCleanup(context.Background(), time.Hour)
	m.Stop()
	m.Stop()
}
