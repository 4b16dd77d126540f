package cache

import "github.com/swaggest/usecase/status"

// SentinelError is an error.
type SentinelError string

// Error implements error.
func (e SentinelError) Error() string {
	return string(e)
}

const (
	// ErrExpired indicates an entry that is present but past its TTL.
	ErrExpired = SentinelError("expired cache entry")

	// ErrEntryTooLarge indicates an entry that alone exceeds the memory budget.
	ErrEntryTooLarge = SentinelError("entry size exceeds memory budget")

	// ErrNotNumeric indicates Increment/Decrement on a non-integer value.
	ErrNotNumeric = SentinelError("cache entry value is not an integer")

	errNotFound = SentinelError("missing cache entry")
)

// ErrNotFound indicates a missing cache entry.
var ErrNotFound = status.Wrap(errNotFound, status.NotFound)
