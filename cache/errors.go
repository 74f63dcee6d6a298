package cache

import (
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrInvalidConfig is returned when the cache is constructed without a registry
	ErrInvalidConfig = fmt.Errorf("cache: invalid config")
)

// Error constructors

// ErrInvalidDefaultTTL returns an error for an invalid default ttl
func ErrInvalidDefaultTTL(ttl time.Duration) error {
	return fmt.Errorf("cache: invalid default ttl: %v (must be > 0)", ttl)
}

// ErrInvalidSweepInterval returns an error for an invalid sweep interval
func ErrInvalidSweepInterval(interval time.Duration) error {
	return fmt.Errorf("cache: invalid sweep interval: %v (must be > 0)", interval)
}

// ErrStartSweep wraps a failure to register the background sweep
func ErrStartSweep(err error) error {
	return fmt.Errorf("cache: start sweep: %w", err)
}
