package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
)

// snapshot is the durable layout, a private format without migration
// between versions. Damaged or unreadable snapshots degrade to cold start.
type snapshot struct {
	Entries   map[string]Entry
	Tags      map[string][]string
	Hits      int64
	Misses    int64
	Evictions int64
	WrittenAt time.Time
}

// persister periodically snapshots the cache. A slow write drops late ticks
// instead of overlapping runs.
func (c *Cache) persister() {
	ticker := time.NewTicker(c.config.PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			// Failure is logged inside, cache operations are unaffected.
			_ = c.Persist(context.Background())
		}
	}
}

// Persist writes entries, tag index and counters into one snapshot blob.
//
// The snapshot is collected under the engine mutex but encoded and written
// outside of it. I/O failure is logged and returned, it never disturbs
// cache operations.
func (c *Cache) Persist(ctx context.Context) error {
	s := snapshot{
		WrittenAt: time.Now(),
		Hits:      c.hits.Value(),
		Misses:    c.misses.Value(),
		Evictions: c.evictions.Value(),
	}

	c.mu.Lock()

	s.Entries = make(map[string]Entry, len(c.data))
	for key, e := range c.data {
		s.Entries[key] = *e
	}

	s.Tags = make(map[string][]string, len(c.tags))
	for tag, set := range c.tags {
		keys := make([]string, 0, len(set))
		for key := range set {
			keys = append(keys, key)
		}

		s.Tags[tag] = keys
	}

	c.mu.Unlock()

	if err := writeSnapshot(c.config.PersistPath, s); err != nil {
		c.log.Warn(ctx, "cache snapshot write failed",
			"name", c.config.Name,
			"path", c.config.PersistPath,
			"error", err.Error())

		return err
	}

	c.log.Debug(ctx, "cache snapshot written",
		"name", c.config.Name,
		"entries", len(s.Entries))

	return nil
}

// restore loads the latest snapshot once at construction, before timers
// start. Missing, short or corrupt snapshots mean cold start, never a
// failure. Restored entries keep their original creation time and are
// re-validated lazily or by the next sweep.
func (c *Cache) restore(ctx context.Context) {
	raw, err := os.ReadFile(c.config.PersistPath)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn(ctx, "cache snapshot read failed, cold start",
				"name", c.config.Name,
				"path", c.config.PersistPath,
				"error", err.Error())
		}

		return
	}

	s, err := decodeSnapshot(raw)
	if err != nil {
		c.log.Warn(ctx, "cache snapshot unusable, cold start",
			"name", c.config.Name,
			"path", c.config.PersistPath,
			"error", err.Error())

		return
	}

	c.mu.Lock()

	for key, se := range s.Entries {
		e := se

		c.data[key] = &e
		c.size += e.SizeBytes
		c.indexTagsLocked(&e)
	}

	c.mu.Unlock()

	c.hits.Add(s.Hits)
	c.misses.Add(s.Misses)
	c.evictions.Add(s.Evictions)

	c.log.Debug(ctx, "cache snapshot restored",
		"name", c.config.Name,
		"entries", len(s.Entries),
		"writtenAt", s.WrittenAt)
}

// writeSnapshot encodes a snapshot prefixed with an xxhash sum of the
// payload and renames it into place so readers never see a partial file.
func writeSnapshot(path string, s snapshot) error {
	var payload bytes.Buffer

	if err := gob.NewEncoder(&payload).Encode(s); err != nil {
		return err
	}

	blob := make([]byte, 8+payload.Len())
	binary.BigEndian.PutUint64(blob, xxhash.Sum64(payload.Bytes()))
	copy(blob[8:], payload.Bytes())

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), path)
}

func decodeSnapshot(raw []byte) (snapshot, error) {
	var s snapshot

	if len(raw) < 8 {
		return s, SentinelError("snapshot too short")
	}

	if binary.BigEndian.Uint64(raw) != xxhash.Sum64(raw[8:]) {
		return s, SentinelError("snapshot checksum mismatch")
	}

	if err := gob.NewDecoder(bytes.NewReader(raw[8:])).Decode(&s); err != nil {
		return s, err
	}

	return s, nil
}

// nolint:gochecknoinits // Registering types to a package level registry of "encoding/gob".
func init() {
	// Registering commonly cached types, custom value types need
	// gob.Register by the caller before Persist can encode them.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register(time.Time{})
}
