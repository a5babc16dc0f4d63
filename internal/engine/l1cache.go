package engine

import (
	"sync"
	"time"
)

// CachedPrice is one quote held in the process-local tier.
type CachedPrice struct {
	Price           float64
	PercentChange24 *float64
	UpdatedAt       time.Time
}

// L1Cache is a process-local price map consulted before Postgres and
// providers. Entries are never evicted on a timer; a read that finds an
// entry older than its TTL removes it.
type L1Cache struct {
	mu      sync.RWMutex
	entries map[string]CachedPrice
	now     func() time.Time
}

// NewL1Cache returns an empty cache. The clock defaults to time.Now and is
// injectable for tests.
func NewL1Cache(clock func() time.Time) *L1Cache {
	if clock == nil {
		clock = time.Now
	}
	return &L1Cache{
		entries: make(map[string]CachedPrice),
		now:     clock,
	}
}

// Get returns the cached quote when its age is strictly below ttl. An entry
// aged exactly ttl is a miss and is dropped.
func (c *L1Cache) Get(code string, ttl time.Duration) (CachedPrice, bool) {
	c.mu.RLock()
	entry, ok := c.entries[code]
	c.mu.RUnlock()
	if !ok {
		return CachedPrice{}, false
	}
	if c.now().Sub(entry.UpdatedAt) >= ttl {
		c.mu.Lock()
		// Re-check under the write lock; a refresh may have landed.
		if current, still := c.entries[code]; still && c.now().Sub(current.UpdatedAt) >= ttl {
			delete(c.entries, code)
		}
		c.mu.Unlock()
		return CachedPrice{}, false
	}
	return entry, true
}

// Put stores a quote, keeping whichever of the stored and incoming entries
// is newer.
func (c *L1Cache) Put(code string, price CachedPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.entries[code]; ok && current.UpdatedAt.After(price.UpdatedAt) {
		return
	}
	c.entries[code] = price
}

// Len reports the number of live entries, stale ones included.
func (c *L1Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
