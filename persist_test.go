package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Persist_roundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.snap")
	ctx := context.Background()

	cfg := Config{
		Name:            "snapshot-test",
		PersistPath:     path,
		PersistInterval: time.Hour,
		SweepInterval:   time.Hour,
	}

	c1 := New(cfg)

	require.NoError(t, c1.Set(ctx, "a", "va", WithTags("t1")))
	require.NoError(t, c1.Set(ctx, "b", 42, WithTags("t1", "t2")))
	require.NoError(t, c1.Set(ctx, "gone", "x", WithTTL(20*time.Millisecond)))

	_, err := c1.Get(ctx, "a")
	require.NoError(t, err)

	// Close performs the final persist.
	require.NoError(t, c1.Close())

	time.Sleep(40 * time.Millisecond)

	c2 := newTestCache(t, cfg)

	v, err := c2.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "va", v)

	v, err = c2.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	// Keys that expired in the interim are cleaned up on access.
	_, err = c2.Get(ctx, "gone")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.ElementsMatch(t, []string{"a", "b"}, c2.GetKeysByTag("t1"))
	assert.Equal(t, []string{"b"}, c2.GetKeysByTag("t2"))

	// Counters survive the restart: 1 hit before persist, 2 after.
	assert.Greater(t, c2.Stats().HitRate, 0.0)
}

func TestCache_restore_corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.snap")

	require.NoError(t, os.WriteFile(path, []byte("not a snapshot at all"), 0o600))

	c := newTestCache(t, Config{PersistPath: path})

	// Corrupt snapshot means cold start, not failure.
	assert.Equal(t, 0, c.Len())
	require.NoError(t, c.Set(context.Background(), "a", 1))
	assert.True(t, c.Has("a"))
}

func TestCache_restore_checksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.snap")
	ctx := context.Background()

	cfg := Config{PersistPath: path, PersistInterval: time.Hour}

	c1 := New(cfg)
	require.NoError(t, c1.Set(ctx, "a", 1))
	require.NoError(t, c1.Close())

	// Flip one payload byte, the integrity sum no longer matches.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	c2 := newTestCache(t, cfg)
	assert.Equal(t, 0, c2.Len())
}

func TestCache_restore_missing(t *testing.T) {
	c := newTestCache(t, Config{
		PersistPath: filepath.Join(t.TempDir(), "never-written.snap"),
	})

	assert.Equal(t, 0, c.Len())
}

func TestCache_Persist_ioFailure(t *testing.T) {
	c := New(Config{
		PersistPath:     filepath.Join(t.TempDir(), "no-such-dir", "cache.snap"),
		PersistInterval: time.Hour,
	})

	// Final persist on Close fails the same way, which is tolerated.
	t.Cleanup(func() {
		assert.Error(t, c.Close())
	})

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1))

	// Snapshot write fails, cache operations are unaffected.
	assert.Error(t, c.Persist(ctx))

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func Test_decodeSnapshot_short(t *testing.T) {
	_, err := decodeSnapshot([]byte{1, 2, 3})
	assert.Error(t, err)
}
