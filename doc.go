// Package cache provides an in-process cache engine for derived values with
// TTL expiration, tag-based bulk invalidation and budget-driven eviction.
//
// Features:
//
//   - Entries carry a TTL, usage metadata and an immutable tag set.
//   - Bulk invalidation by tag ("drop everything derived from object X").
//   - Memory budget enforced on admission with hybrid usage/recency eviction.
//   - Entry count budget enforced with oldest-first eviction.
//   - Lazy expiration on access plus a background sweep for cold keys.
//   - Best-effort snapshot persistence survives process restarts.
//   - Single-flight computation of missing values.
//   - Allows logging, stats collection.
package cache
