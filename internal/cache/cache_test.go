package cache

import (
	"testing"
	"time"

	"github.com/kartikbazzad/nubodb/internal/storage"
)

func TestDocumentCacheGetPutDelete(t *testing.T) {
	c := NewDocumentCache(10)
	doc := storage.Document{"id": "d1", "name": "Alice"}
	c.Put("d1", doc)

	got, ok := c.Get("d1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got["name"] != "Alice" {
		t.Errorf("expected Alice, got %v", got["name"])
	}

	c.Delete("d1")
	if _, ok := c.Get("d1"); ok {
		t.Error("expected cache miss after delete")
	}
}

func TestDocumentCacheClear(t *testing.T) {
	c := NewDocumentCache(10)
	c.Put("d1", storage.Document{"id": "d1"})
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after clear, got %d entries", c.Len())
	}
}

func TestQueryCacheExpiresAfterTTL(t *testing.T) {
	c := NewQueryCache(10, 10*time.Millisecond)
	c.Set("q1", "result")

	if _, ok := c.Get("q1"); !ok {
		t.Fatal("expected an immediate hit")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("q1"); ok {
		t.Error("expected a miss after the entry expired")
	}
}

func TestQueryCacheClearInvalidatesEverything(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Set("q1", "result")
	c.Clear()
	if _, ok := c.Get("q1"); ok {
		t.Error("expected a miss after Clear")
	}
}

func TestQueryCacheEvictsWhenOverCapacity(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	c.Set("q1", "r1")
	c.Set("q2", "r2")
	c.Set("q3", "r3")

	hits := 0
	for _, k := range []string{"q1", "q2", "q3"} {
		if _, ok := c.Get(k); ok {
			hits++
		}
	}
	if hits > 2 {
		t.Errorf("expected capacity to be enforced, got %d live entries", hits)
	}
}
