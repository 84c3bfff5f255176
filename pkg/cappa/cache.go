package cappa

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cache holds file contents for the static responder, bounded by total
// size in bytes. Files larger than the per-item limit are never cached.
type Cache struct {
	store   *ristretto.Cache
	maxItem int64
}

type cacheEntry struct {
	data []byte
	etag string
}

// NewCache creates a cache holding up to maxBytes of file data, admitting
// files of at most maxItem bytes.
func NewCache(maxBytes, maxItem int64) (*Cache, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("cache size must be positive")
	}
	if maxItem <= 0 || maxItem > maxBytes {
		maxItem = maxBytes
	}

	// Assume ~4KB per file when sizing the admission counters.
	items := maxBytes / 4096
	if items < 100 {
		items = 100
	}

	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: items * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Cache{store: store, maxItem: maxItem}, nil
}

// Admits reports whether a file of size bytes is eligible for caching.
func (c *Cache) Admits(size int64) bool {
	return c != nil && size <= c.maxItem
}

func (c *Cache) get(key string) (cacheEntry, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return cacheEntry{}, false
	}
	entry, ok := v.(cacheEntry)
	return entry, ok
}

func (c *Cache) set(key string, entry cacheEntry) {
	c.store.Set(key, entry, int64(len(entry.data)))
}

// Wait blocks until pending writes are visible to readers.
func (c *Cache) Wait() {
	c.store.Wait()
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.store.Close()
}
