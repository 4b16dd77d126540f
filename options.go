package cache

import "time"

type writeOptions struct {
	ttl       time.Duration
	tags      []string
	sizeBytes int64
}

// WriteOption alters a single Set.
type WriteOption func(o *writeOptions)

// WithTTL overrides the configured default TTL for one entry.
func WithTTL(ttl time.Duration) WriteOption {
	return func(o *writeOptions) {
		o.ttl = ttl
	}
}

// WithTags attaches tags to one entry for bulk invalidation.
//
// Tags are fixed for the entry's lifetime, a later Set on the same key
// replaces them wholesale.
func WithTags(tags ...string) WriteOption {
	return func(o *writeOptions) {
		o.tags = tags
	}
}

// WithSizeBytes supplies entry size instead of serialized estimation.
//
// Size is used for admission and eviction accounting only.
func WithSizeBytes(size int64) WriteOption {
	return func(o *writeOptions) {
		o.sizeBytes = size
	}
}
