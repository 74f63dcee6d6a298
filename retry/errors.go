package retry

import (
	"fmt"
	"time"
)

// ErrInvalidMaxAttempts returns an error for an invalid attempt limit
func ErrInvalidMaxAttempts(n int) error {
	return fmt.Errorf("retry: invalid max attempts: %d (must be >= 1)", n)
}

// ErrInvalidDelay returns an error for an invalid initial or max delay
func ErrInvalidDelay(which string, d time.Duration) error {
	return fmt.Errorf("retry: invalid %s delay: %v", which, d)
}

// ErrInvalidMultiplier returns an error for an invalid backoff multiplier
func ErrInvalidMultiplier(m float64) error {
	return fmt.Errorf("retry: invalid multiplier: %v (must be > 1)", m)
}

// ErrInvalidJitter returns an error for an invalid jitter fraction
func ErrInvalidJitter(j float64) error {
	return fmt.Errorf("retry: invalid jitter fraction: %v (must be in [0, 1))", j)
}
