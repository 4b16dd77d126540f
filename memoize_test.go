package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetOrCompute(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	builds := int32(0)

	build := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&builds, 1)
		time.Sleep(10 * time.Millisecond)

		return "derived", nil
	}

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			v, err := c.GetOrCompute(ctx, "k", build, WithTags("obj"))
			assert.NoError(t, err)
			assert.Equal(t, "derived", v)
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
	assert.Equal(t, []string{"k"}, c.GetKeysByTag("obj"))

	// Subsequent calls hit the cache.
	v, err := c.GetOrCompute(ctx, "k", build)
	require.NoError(t, err)
	assert.Equal(t, "derived", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
}

func TestCache_GetOrCompute_missAccounting(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	build := func(ctx context.Context) (interface{}, error) {
		return 1, nil
	}

	_, err := c.GetOrCompute(ctx, "k", build)
	require.NoError(t, err)

	_, err = c.GetOrCompute(ctx, "k", build)
	require.NoError(t, err)

	// One miss for the cold call, one hit for the warm call. The re-check
	// inside the build path is not a request and must not skew the rates.
	s := c.Stats()
	assert.InDelta(t, 0.5, s.HitRate, 1e-9)
	assert.InDelta(t, 0.5, s.MissRate, 1e-9)
}

func TestCache_GetOrCompute_buildError(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, "k", func(ctx context.Context) (interface{}, error) {
		return nil, SentinelError("upstream down")
	})
	assert.EqualError(t, err, "upstream down")
	assert.False(t, c.Has("k"))
}
