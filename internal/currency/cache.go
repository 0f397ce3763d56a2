package currency

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// rateCache is the in-process pair cache on the hot path. Read-heavy with
// short exclusive writes; concurrent writers racing to populate the same
// missing key converge on last-writer-wins, which is fine because all
// writers hold an equally fresh rate.
type rateCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value    decimal.Decimal
	source   string
	storedAt time.Time
}

func newRateCache(ttl time.Duration) *rateCache {
	return &rateCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func pairKey(base, target string) string {
	return base + "/" + target
}

// get returns the cached entry for the pair if present and within TTL.
func (c *rateCache) get(base, target string, now time.Time) (cacheEntry, bool) {
	c.mu.RLock()
	e, ok := c.entries[pairKey(base, target)]
	c.mu.RUnlock()
	if !ok || now.Sub(e.storedAt) > c.ttl {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *rateCache) set(base, target string, value decimal.Decimal, source string, now time.Time) {
	c.mu.Lock()
	c.entries[pairKey(base, target)] = cacheEntry{value: value, source: source, storedAt: now}
	c.mu.Unlock()
}
