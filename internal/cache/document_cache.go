// Package cache implements the two bounded caches of §4.5/§4.6: a
// document identity cache and a TTL query-result cache.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kartikbazzad/nubodb/internal/storage"
)

// DefaultDocumentCacheSize is used when a collection doesn't configure
// MaxCacheSize explicitly.
const DefaultDocumentCacheSize = 1000

// DocumentCache is a bounded id -> document map. Eviction is LRU,
// satisfying §4.5's invariant ("if a document id is in the cache, its
// value equals storage") regardless of which entries get evicted.
type DocumentCache struct {
	lru *lru.Cache[string, storage.Document]
}

// NewDocumentCache builds a document cache with the given capacity.
func NewDocumentCache(size int) *DocumentCache {
	if size <= 0 {
		size = DefaultDocumentCacheSize
	}
	c, _ := lru.New[string, storage.Document](size)
	return &DocumentCache{lru: c}
}

// Get returns the cached document for id, if present.
func (c *DocumentCache) Get(id string) (storage.Document, bool) {
	return c.lru.Get(id)
}

// Put stores doc under id, populated on load and on every successful write.
func (c *DocumentCache) Put(id string, doc storage.Document) {
	c.lru.Add(id, doc)
}

// Delete removes id's entry, if any.
func (c *DocumentCache) Delete(id string) {
	c.lru.Remove(id)
}

// Clear empties the cache unconditionally.
func (c *DocumentCache) Clear() {
	c.lru.Purge()
}

// Len returns the number of cached documents.
func (c *DocumentCache) Len() int {
	return c.lru.Len()
}
