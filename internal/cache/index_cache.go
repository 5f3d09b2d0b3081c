package cache

import (
	"sync"
	"time"

	"policyrag/internal/index"
)

// IndexCache memoizes built similarity indexes per normalized document
// reference. Bounded by entry count; the least recently used entry is
// evicted when full. Entries otherwise live until process restart or
// explicit eviction.
type IndexCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*indexEntry
}

type indexEntry struct {
	index    *index.Index
	lastUsed time.Time
}

func NewIndexCache(maxSize int) *IndexCache {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &IndexCache{
		maxSize: maxSize,
		entries: make(map[string]*indexEntry),
	}
}

func (c *IndexCache) Get(ref string) (*index.Index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[ref]
	if !ok {
		return nil, false
	}
	entry.lastUsed = time.Now()
	return entry.index, true
}

func (c *IndexCache) Put(ref string, ix *index.Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[ref]; !ok && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[ref] = &indexEntry{index: ix, lastUsed: time.Now()}
}

func (c *IndexCache) Delete(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ref)
}

func (c *IndexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *IndexCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastUsed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
