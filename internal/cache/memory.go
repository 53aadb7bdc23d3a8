package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local Cache for tests and for running without
// Redis. Expiry is checked lazily on read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     int64
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) GetBalance(_ context.Context, userA, userB string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := balanceKey(userA, userB)
	entry, ok := c.entries[key]
	if !ok {
		return 0, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return 0, false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCache) SetBalance(_ context.Context, userA, userB string, netAmount int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[balanceKey(userA, userB)] = memoryEntry{
		value:     netAmount,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userA, userB string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, balanceKey(userA, userB))
	return nil
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}
