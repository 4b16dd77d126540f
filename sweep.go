package cache

import (
	"context"
	"time"
)

// sweeper periodically purges expired entries. Complements lazy expiration
// by bounding staleness of cold keys that are never read.
func (c *Cache) sweeper() {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case now := <-ticker.C:
			c.sweep(now)
		}
	}
}

// sweep removes entries past their TTL through the same removal path as
// Remove. A sweep is not a request, hit/miss counters are not touched.
func (c *Cache) sweep(now time.Time) {
	ctx := context.Background()
	swept := 0

	c.mu.Lock()

	for _, e := range c.data {
		if e.expired(now) {
			c.removeLocked(e)

			swept++
		}
	}

	remaining := len(c.data)

	c.mu.Unlock()

	if swept > 0 {
		c.log.Debug(ctx, "swept expired cache entries",
			"name", c.config.Name,
			"count", swept)
	}

	c.stat.Set(ctx, MetricItems, float64(remaining), "name", c.config.Name)
}
