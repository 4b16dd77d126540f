package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"regexp"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/puzpuzpuz/xsync"
	"golang.org/x/sync/singleflight"
)

// fallbackSizeBytes is accounted for entries whose value fails serialization.
const fallbackSizeBytes = 1024

// Cache is an in-process cache engine. Please use New to create an instance.
//
// One mutex guards the entry map, the tag index and size accounting, they
// mutate as a single unit. Background sweep and persist timers interleave
// with callers through the same mutex.
type Cache struct {
	mu   sync.Mutex
	data map[string]*Entry
	tags map[string]map[string]struct{}
	size int64

	hits      *xsync.Counter
	misses    *xsync.Counter
	evictions *xsync.Counter

	building singleflight.Group

	closed    chan struct{}
	closeOnce sync.Once

	config Config
	log    ctxd.Logger
	stat   stats.Tracker
}

// New creates a cache instance with optional configuration.
//
// A snapshot at Config.PersistPath, if any, is restored before the sweep and
// persist timers start. Restored entries are not re-validated until first
// access or sweep.
func New(cfg ...Config) *Cache {
	config := Config{}

	if len(cfg) >= 1 {
		config = cfg[0]
	}

	config.applyDefaults()

	c := &Cache{
		data:      make(map[string]*Entry),
		tags:      make(map[string]map[string]struct{}),
		hits:      new(xsync.Counter),
		misses:    new(xsync.Counter),
		evictions: new(xsync.Counter),
		closed:    make(chan struct{}),
		config:    config,
		log:       config.Logger,
		stat:      config.Stats,
	}

	if config.PersistPath != "" {
		c.restore(context.Background())

		go c.persister()
	}

	go c.sweeper()

	return c
}

// Close stops background timers and writes a final best-effort snapshot.
//
// The instance must not be used afterward. Safe to call multiple times.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})

	if c.config.PersistPath == "" {
		return nil
	}

	return c.Persist(context.Background())
}

// Set stores a value. Prior entry under the same key is replaced together
// with its tag memberships.
//
// If admission would exceed the memory budget, lower-scored entries are
// evicted first. If the resulting count exceeds the entry budget, the oldest
// tenth of entries is removed. A value that alone exceeds the whole memory
// budget is rejected with ErrEntryTooLarge.
func (c *Cache) Set(ctx context.Context, key string, val interface{}, opts ...WriteOption) error {
	o := writeOptions{ttl: c.config.DefaultTTL}

	for _, opt := range opts {
		opt(&o)
	}

	if o.ttl == 0 {
		o.ttl = c.config.DefaultTTL
	}

	size := o.sizeBytes
	if size <= 0 {
		size = c.estimateSize(ctx, val)
	}

	if size > c.config.MaxMemoryBytes {
		return ctxd.WrapError(ctx, ErrEntryTooLarge, "admission rejected",
			"key", key,
			"size", size,
			"budget", c.config.MaxMemoryBytes)
	}

	now := time.Now()

	c.mu.Lock()

	if prior, ok := c.data[key]; ok {
		c.removeLocked(prior)
	}

	c.admitLocked(ctx, &Entry{
		Key:            key,
		Val:            val,
		CreatedAt:      now,
		TTL:            o.ttl,
		LastAccessedAt: now,
		Tags:           o.tags,
		SizeBytes:      size,
	}, now)

	c.mu.Unlock()

	c.log.Debug(ctx, "wrote to cache",
		"name", c.config.Name,
		"key", key,
		"ttl", o.ttl,
		"tags", o.tags)
	c.stat.Add(ctx, MetricWrite, 1, "name", c.config.Name)

	return nil
}

// Get returns a cached value.
//
// Expired entries are removed on sight and reported as ErrNotFound,
// regardless of the sweeper. A successful read bumps access metadata.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, error) {
	v, _, err := c.read(ctx, key)

	return v, err
}

// GetWithMetadata returns a cached value together with its metadata.
func (c *Cache) GetWithMetadata(ctx context.Context, key string) (interface{}, Meta, error) {
	return c.read(ctx, key)
}

func (c *Cache) read(ctx context.Context, key string) (interface{}, Meta, error) {
	now := time.Now()

	c.mu.Lock()

	e, ok := c.data[key]
	if !ok {
		c.mu.Unlock()

		c.misses.Inc()
		c.log.Debug(ctx, "cache miss", "name", c.config.Name, "key", key)
		c.stat.Add(ctx, MetricMiss, 1, "name", c.config.Name)

		return nil, Meta{}, ErrNotFound
	}

	if e.expired(now) {
		c.removeLocked(e)
		c.mu.Unlock()

		c.misses.Inc()
		c.log.Debug(ctx, "cache key expired", "name", c.config.Name, "key", key)
		c.stat.Add(ctx, MetricExpired, 1, "name", c.config.Name)
		c.stat.Add(ctx, MetricMiss, 1, "name", c.config.Name)

		return nil, Meta{}, ErrNotFound
	}

	e.AccessCount++
	e.LastAccessedAt = now

	v := e.Val
	m := e.meta()

	c.mu.Unlock()

	c.hits.Inc()
	c.stat.Add(ctx, MetricHit, 1, "name", c.config.Name)

	return v, m, nil
}

// Has reports whether a live entry exists.
//
// Expired entries are removed on sight, same as Get, but neither access
// metadata nor hit/miss counters are touched.
func (c *Cache) Has(key string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		return false
	}

	if e.expired(now) {
		c.removeLocked(e)

		return false
	}

	return true
}

// peek returns a live value without touching access metadata or hit/miss
// counters, expired entries are still removed on sight.
func (c *Cache) peek(key string) (interface{}, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		return nil, false
	}

	if e.expired(now) {
		c.removeLocked(e)

		return nil, false
	}

	return e.Val, true
}

// Remove deletes one entry and its tag memberships.
func (c *Cache) Remove(ctx context.Context, key string) bool {
	c.mu.Lock()

	e, ok := c.data[key]
	if ok {
		c.removeLocked(e)
	}

	c.mu.Unlock()

	if ok {
		c.stat.Add(ctx, MetricDelete, 1, "name", c.config.Name)
	}

	return ok
}

// RemoveByTag deletes every entry currently indexed under tag and returns
// the count removed.
//
// This is the bulk invalidation primitive, e.g. "invalidate everything
// derived from object X".
func (c *Cache) RemoveByTag(ctx context.Context, tag string) int {
	c.mu.Lock()

	removed := 0

	for key := range c.tags[tag] {
		if e, ok := c.data[key]; ok {
			c.removeLocked(e)
			removed++
		}
	}

	c.mu.Unlock()

	if removed > 0 {
		c.log.Debug(ctx, "invalidated by tag",
			"name", c.config.Name,
			"tag", tag,
			"count", removed)
		c.stat.Add(ctx, MetricDelete, float64(removed), "name", c.config.Name)
	}

	return removed
}

// GetKeysByTag returns a snapshot of keys indexed under tag.
func (c *Cache) GetKeysByTag(tag string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.tags[tag]
	keys := make([]string, 0, len(set))

	for key := range set {
		keys = append(keys, key)
	}

	return keys
}

// Clear empties store and tag index and resets statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.data = make(map[string]*Entry)
	c.tags = make(map[string]map[string]struct{})
	c.size = 0
	c.mu.Unlock()

	c.hits.Reset()
	c.misses.Reset()
	c.evictions.Reset()
}

// GetByPattern returns live entries whose keys match a regular expression.
//
// Linear scan for diagnostics, not a hot path. Expired entries are skipped
// and hit/miss counters are not touched.
func (c *Cache) GetByPattern(pattern string) (map[string]interface{}, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res := make(map[string]interface{})

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.data {
		if e.expired(now) {
			continue
		}

		if re.MatchString(key) {
			res[key] = e.Val
		}
	}

	return res, nil
}

// Item is a single MSet element.
type Item struct {
	Key     string
	Val     interface{}
	Options []WriteOption
}

// MSet stores a batch of values with per-item Set semantics.
func (c *Cache) MSet(ctx context.Context, items ...Item) error {
	for _, it := range items {
		if err := c.Set(ctx, it.Key, it.Val, it.Options...); err != nil {
			return err
		}
	}

	return nil
}

// MGet returns values for the keys that are present and not expired, with
// per-item Get semantics.
func (c *Cache) MGet(ctx context.Context, keys ...string) map[string]interface{} {
	res := make(map[string]interface{}, len(keys))

	for _, key := range keys {
		if v, err := c.Get(ctx, key); err == nil {
			res[key] = v
		}
	}

	return res
}

// Increment adds delta to an integer value, storing delta against zero if
// the entry is absent, and returns the new value.
//
// Single-process semantics only. An existing entry keeps its TTL and tags.
func (c *Cache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if ok && e.expired(now) {
		c.removeLocked(e)

		ok = false
	}

	if !ok {
		c.admitLocked(ctx, &Entry{
			Key:            key,
			Val:            delta,
			CreatedAt:      now,
			TTL:            c.config.DefaultTTL,
			LastAccessedAt: now,
			SizeBytes:      8,
		}, now)

		return delta, nil
	}

	cur, ok := asInt64(e.Val)
	if !ok {
		return 0, ctxd.WrapError(ctx, ErrNotNumeric, "increment failed", "key", key)
	}

	cur += delta
	e.Val = cur
	e.LastAccessedAt = now

	return cur, nil
}

// Decrement subtracts delta from an integer value, see Increment.
func (c *Cache) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return c.Increment(ctx, key, -delta)
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	}

	return 0, false
}

// Expire resets TTL and creation time of an existing entry without touching
// its value. Returns false for absent or already expired entries.
func (c *Cache) Expire(key string, ttl time.Duration) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		return false
	}

	if e.expired(now) {
		c.removeLocked(e)

		return false
	}

	e.TTL = ttl
	e.CreatedAt = now

	return true
}

// TTL returns remaining time before expiry.
//
// ErrNotFound is returned for absent keys, ErrExpired for entries that are
// still present but past their TTL.
func (c *Cache) TTL(key string) (time.Duration, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		return 0, ErrNotFound
	}

	if e.expired(now) {
		return 0, ErrExpired
	}

	return e.TTL - now.Sub(e.CreatedAt), nil
}

// Len returns number of entries, expired included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.data)
}

// Walk calls a function for every entry and fails on first error returned
// by that function. Count of processed entries is returned.
//
// Entries are passed by value, mutations do not reach the store.
func (c *Cache) Walk(walkFn func(e Entry) error) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0

	for _, e := range c.data {
		if err := walkFn(*e); err != nil {
			return n, err
		}

		n++
	}

	return n, nil
}

// admitLocked inserts an entry enforcing both budgets: memory pressure is
// relieved before insertion, count pressure right after. Every write path
// that creates an entry goes through here.
func (c *Cache) admitLocked(ctx context.Context, e *Entry, now time.Time) {
	if c.size+e.SizeBytes > c.config.MaxMemoryBytes {
		c.evictBytesLocked(ctx, c.size+e.SizeBytes-c.config.MaxMemoryBytes, now)
	}

	c.data[e.Key] = e
	c.size += e.SizeBytes
	c.indexTagsLocked(e)

	if len(c.data) > c.config.MaxEntries {
		c.evictOldestLocked(ctx, e.Key)
	}
}

// removeLocked deletes an entry and its tag memberships as one unit.
func (c *Cache) removeLocked(e *Entry) {
	delete(c.data, e.Key)
	c.size -= e.SizeBytes

	for _, t := range e.Tags {
		set := c.tags[t]

		delete(set, e.Key)

		if len(set) == 0 {
			delete(c.tags, t)
		}
	}
}

func (c *Cache) indexTagsLocked(e *Entry) {
	for _, t := range e.Tags {
		set := c.tags[t]
		if set == nil {
			set = make(map[string]struct{})
			c.tags[t] = set
		}

		set[e.Key] = struct{}{}
	}
}

// estimateSize serializes the value to count bytes. Serialization failure
// falls back to a fixed size so admission control keeps functioning.
func (c *Cache) estimateSize(ctx context.Context, v interface{}) int64 {
	var buf bytes.Buffer

	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		c.log.Debug(ctx, "size estimation failed, using fallback",
			"name", c.config.Name,
			"error", err.Error())

		return fallbackSizeBytes
	}

	return int64(buf.Len())
}
