package cache

import "sync"

// MemoryCache is an in-memory Cache, useful in tests and for runtimes that
// opt out of durable snapshots.
type MemoryCache struct {
	mu    sync.Mutex
	snap  Snapshot
	has   bool
	saves int
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Save stores a private copy of the snapshot.
func (c *MemoryCache) Save(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap.Clone()
	c.has = true
	c.saves++
}

// Load returns a copy of the last saved snapshot.
func (c *MemoryCache) Load() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.has {
		return Snapshot{}, false
	}
	return c.snap.Clone(), true
}

// Saves reports how many times Save has been called.
func (c *MemoryCache) Saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

var _ Cache = (*MemoryCache)(nil)
