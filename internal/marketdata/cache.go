package marketdata

import (
	"fmt"
	"sync"
	"time"

	"PerpPilot/internal/model"
)

type cacheEntry struct {
	series   model.CandleSeries
	storedAt time.Time
}

// candleCache caches fetched series by (symbol, interval, limit) with a
// fixed TTL. Reads vastly outnumber writes during parallel evaluation, so
// it uses an RWMutex.
type candleCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newCandleCache(ttl time.Duration) *candleCache {
	return &candleCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func cacheKey(symbol, interval string, limit int) string {
	return fmt.Sprintf("%s|%s|%d", symbol, interval, limit)
}

func (c *candleCache) Get(symbol, interval string, limit int) (model.CandleSeries, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey(symbol, interval, limit)]
	if !ok || time.Since(e.storedAt) > c.ttl {
		return model.CandleSeries{}, false
	}
	return e.series, true
}

func (c *candleCache) Put(symbol, interval string, limit int, series model.CandleSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(symbol, interval, limit)] = cacheEntry{series: series, storedAt: time.Now()}
}

// Len returns the number of live (unexpired) entries.
func (c *candleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if time.Since(e.storedAt) <= c.ttl {
			n++
		}
	}
	return n
}

// Sweep drops expired entries. Called from the periodic maintenance job.
func (c *candleCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if time.Since(e.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}
