package schedule

import (
	"fmt"
	"time"
)

var (
	// ErrClosed is returned when scheduling on, or sleeping through, a closed registry
	ErrClosed = fmt.Errorf("schedule: registry is closed")
)

// ErrParseSpec wraps a cron spec parse failure
func ErrParseSpec(spec string, err error) error {
	return fmt.Errorf("schedule: invalid spec %q: %w", spec, err)
}

// ErrInvalidInterval returns an error for a non-positive interval
func ErrInvalidInterval(d time.Duration) error {
	return fmt.Errorf("schedule: invalid interval: %v (must be > 0)", d)
}
