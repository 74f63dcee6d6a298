// Package cache provides the in-memory TTL cache every contractflow read goes
// through.
//
// The cache package follows go-kit conventions:
// - Interface-driven design for testability
// - Uses logger.Logger interface for unified logging
// - Background sweep registered with a schedule.Registry
// - Configuration with validation and defaults
// - Structured error handling
//
// An expired entry is indistinguishable from a missing one: Get never returns
// it and evicts it on the spot. Nothing ever stores an error value.
package cache

import (
	"regexp"
	"time"
)

// Entry is one cached value.
type Entry struct {
	Key       string
	Value     any
	CreatedAt time.Time
	TTL       time.Duration
}

// Valid reports whether the entry is still fresh at now.
func (e *Entry) Valid(now time.Time) bool {
	return now.Sub(e.CreatedAt) <= e.TTL
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Sweeps    uint64
}

// Cache is a key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value stored under key. An expired entry is evicted and
	// reported as a miss.
	Get(key string) (any, bool)

	// Set stores value under key, overwriting any previous entry.
	// A ttl <= 0 uses the configured default TTL.
	Set(key string, value any, ttl time.Duration)

	// Invalidate removes a single key and reports whether it was present
	Invalidate(key string) bool

	// InvalidateMatching removes every key containing substr
	InvalidateMatching(substr string) int

	// InvalidatePattern removes every key matched by re
	InvalidatePattern(re *regexp.Regexp) int

	// Clear removes every entry
	Clear() int

	// Sweep removes all expired entries now, independent of the background sweep
	Sweep() int

	// Len returns the number of stored entries, expired ones included until
	// they are touched or swept
	Len() int

	Stats() Stats

	// Close stops the background sweep. It can be called multiple times safely
	Close()
}

// GetAs returns the value under key asserted to T. A stored value of another
// type is reported as a miss.
func GetAs[T any](c Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
