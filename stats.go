package cache

// Metric names for stats tracker.
const (
	// MetricHit is a name of metric for cache hits.
	MetricHit = "cache_hit"
	// MetricMiss is a name of metric for cache misses.
	MetricMiss = "cache_miss"
	// MetricExpired is a name of metric for expired reads.
	MetricExpired = "cache_expired"
	// MetricWrite is a name of metric for cache writes.
	MetricWrite = "cache_write"
	// MetricDelete is a name of metric for removals.
	MetricDelete = "cache_delete"
	// MetricEvict is a name of metric for evictions.
	MetricEvict = "cache_evict"
	// MetricItems is a name of gauge for number of entries.
	MetricItems = "cache_items"
)

// Stats is a point-in-time view of cache behavior.
type Stats struct {
	TotalEntries  int
	TotalSize     int64
	HitRate       float64
	MissRate      float64
	EvictionCount int64
	MemoryUsage   float64
}

// Stats returns current counters and derived rates.
//
// HitRate and MissRate are 0 before the first request. MemoryUsage is a
// fraction of the memory budget in use.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.data)
	size := c.size
	c.mu.Unlock()

	s := Stats{
		TotalEntries:  entries,
		TotalSize:     size,
		EvictionCount: c.evictions.Value(),
		MemoryUsage:   float64(size) / float64(c.config.MaxMemoryBytes),
	}

	hits := c.hits.Value()
	misses := c.misses.Value()

	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
		s.MissRate = float64(misses) / float64(total)
	}

	return s
}
