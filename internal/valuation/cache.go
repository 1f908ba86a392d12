package valuation

import (
	"sync"
	"time"

	"marktwatch/server/internal/models"
)

// Cache holds the most recent valuation report for the dashboard API. It is
// a plain cache: every refresh replaces the whole report, and the listing
// store stays the only source of truth.
type Cache struct {
	mu        sync.RWMutex
	results   map[string]models.ValuationResult
	updatedAt time.Time
}

func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) Set(results map[string]models.ValuationResult, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = results
	c.updatedAt = at
}

// Snapshot returns a copy of the cached report and its refresh time. The
// copy keeps handlers from racing a concurrent refresh.
func (c *Cache) Snapshot() (map[string]models.ValuationResult, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]models.ValuationResult, len(c.results))
	for key, res := range c.results {
		out[key] = res
	}
	return out, c.updatedAt
}

// IsEmpty reports whether a report has ever been cached.
func (c *Cache) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.results == nil
}
