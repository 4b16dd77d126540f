package cache

import (
	"context"
	"sort"
	"time"
)

// Keep-worthiness weights, frequency over recency.
const (
	frequencyWeight = 0.7
	recencyWeight   = 0.3
)

// keepScore ranks an entry for size-pressure eviction. Lower is evicted
// first: rarely accessed entries with long idle time score lowest.
func keepScore(e *Entry, now time.Time) float64 {
	idle := now.Sub(e.LastAccessedAt).Seconds()

	return frequencyWeight*float64(e.AccessCount) - recencyWeight*idle
}

// evictBytesLocked frees at least need bytes by removing entries in
// ascending keep-worthiness.
func (c *Cache) evictBytesLocked(ctx context.Context, need int64, now time.Time) {
	type candidate struct {
		key   string
		score float64
	}

	candidates := make([]candidate, 0, len(c.data))

	for key, e := range c.data {
		candidates = append(candidates, candidate{key: key, score: keepScore(e, now)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score < candidates[j].score
	})

	freed := int64(0)
	evicted := 0

	for _, cand := range candidates {
		if freed >= need {
			break
		}

		e := c.data[cand.key]
		freed += e.SizeBytes

		c.removeLocked(e)
		c.evictions.Inc()
		evicted++
	}

	if evicted > 0 {
		c.log.Debug(ctx, "evicted for memory pressure",
			"name", c.config.Name,
			"count", evicted,
			"freed", freed)
		c.stat.Add(ctx, MetricEvict, float64(evicted), "name", c.config.Name)
	}
}

// evictOldestLocked removes the oldest tenth of entries by creation time,
// used on count pressure only. The just-admitted key is spared, entries
// created in the same clock tick tie on CreatedAt.
func (c *Cache) evictOldestLocked(ctx context.Context, keep string) {
	type candidate struct {
		key       string
		createdAt time.Time
	}

	candidates := make([]candidate, 0, len(c.data))

	for key, e := range c.data {
		if key == keep {
			continue
		}

		candidates = append(candidates, candidate{key: key, createdAt: e.CreatedAt})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].createdAt.Before(candidates[j].createdAt)
	})

	evictItems := len(candidates) / 10
	if evictItems < 1 {
		evictItems = 1
	}

	for i := 0; i < evictItems; i++ {
		c.removeLocked(c.data[candidates[i].key])
		c.evictions.Inc()
	}

	c.log.Debug(ctx, "evicted for count pressure",
		"name", c.config.Name,
		"count", evictItems)
	c.stat.Add(ctx, MetricEvict, float64(evictItems), "name", c.config.Name)
}
