package cache

import "context"

// GetOrCompute returns the cached value for key, computing and storing it
// on a miss.
//
// Concurrent misses on the same key run build once and share its result.
// Build errors are returned to every waiter and nothing is stored.
func (c *Cache) GetOrCompute(ctx context.Context, key string, build func(ctx context.Context) (interface{}, error), opts ...WriteOption) (interface{}, error) {
	if v, err := c.Get(ctx, key); err == nil {
		return v, nil
	}

	v, err, _ := c.building.Do(key, func() (interface{}, error) {
		// Another caller may have stored the value while this one was
		// queued behind the in-flight build. The miss is already counted,
		// the re-check must not count another request.
		if v, ok := c.peek(key); ok {
			return v, nil
		}

		v, err := build(ctx)
		if err != nil {
			return nil, err
		}

		if err := c.Set(ctx, key, v, opts...); err != nil {
			return nil, err
		}

		return v, nil
	})

	return v, err
}
