package resolver

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process TTL cache for resolutions. Expired entries
// are dropped lazily on read and swept whenever the map grows.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	clock   func() time.Time
}

type memoryEntry struct {
	res       *Resolution
	expiresAt time.Time
}

// NewMemoryCache creates a cache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		clock:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, subdomain string) (*Resolution, bool) {
	c.mu.RLock()
	entry, ok := c.entries[subdomain]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.clock().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; Set may have refreshed it.
		if cur, ok := c.entries[subdomain]; ok && c.clock().After(cur.expiresAt) {
			delete(c.entries, subdomain)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.res, true
}

func (c *MemoryCache) Set(_ context.Context, subdomain string, res *Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	c.entries[subdomain] = memoryEntry{res: res, expiresAt: now.Add(c.ttl)}
	// Opportunistic sweep keeps the map from accumulating dead tenants.
	if len(c.entries)%128 == 0 {
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
}

func (c *MemoryCache) Invalidate(_ context.Context, subdomain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, subdomain)
}
