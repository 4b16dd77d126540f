package cache

import "time"

// Entry is a cache entry with usage metadata.
//
// Fields are exported for gob encoding in snapshots.
type Entry struct {
	Key            string
	Val            interface{}
	CreatedAt      time.Time
	TTL            time.Duration
	AccessCount    int64
	LastAccessedAt time.Time
	Tags           []string
	SizeBytes      int64
}

// Value returns cached payload.
func (e Entry) Value() interface{} {
	return e.Val
}

// ExpireAt returns expiration time.
func (e Entry) ExpireAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

func (e Entry) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Meta is an entry metadata snapshot without the payload.
type Meta struct {
	Key            string
	CreatedAt      time.Time
	TTL            time.Duration
	AccessCount    int64
	LastAccessedAt time.Time
	Tags           []string
	SizeBytes      int64
}

func (e *Entry) meta() Meta {
	tags := make([]string, len(e.Tags))
	copy(tags, e.Tags)

	return Meta{
		Key:            e.Key,
		CreatedAt:      e.CreatedAt,
		TTL:            e.TTL,
		AccessCount:    e.AccessCount,
		LastAccessedAt: e.LastAccessedAt,
		Tags:           tags,
		SizeBytes:      e.SizeBytes,
	}
}
