package batch

import (
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrEmptyBatch is returned when submitting a batch without items
	ErrEmptyBatch = fmt.Errorf("batch: no items provided")
	// ErrInvalidConfig is returned when the poller is built without a service or registry
	ErrInvalidConfig = fmt.Errorf("batch: invalid config")
	// ErrPollTimeout is the cancellation cause of a job whose poll timeout elapsed
	ErrPollTimeout = fmt.Errorf("batch: poll timeout elapsed")
	// ErrBatchFailed is recorded when the service fails a batch without reporting any item
	ErrBatchFailed = fmt.Errorf("batch: service reported batch failure")
)

// Error constructors

// ErrBatchTooLarge returns an error for a submission over the size limit
func ErrBatchTooLarge(n, limit int) error {
	return fmt.Errorf("batch: %d items exceeds max batch size %d", n, limit)
}

// ErrItemsUnreported returns an error for a batch the service finished without
// reporting every submitted item
func ErrItemsUnreported(n int) error {
	return fmt.Errorf("batch: service finished the batch with %d submitted items unreported", n)
}

// ErrTooManyFailures wraps the last status error after too many failed polls
func ErrTooManyFailures(n int, err error) error {
	return fmt.Errorf("batch: %d consecutive status failures: %w", n, err)
}

// ErrInvalidDuration returns an error for a non-positive duration setting
func ErrInvalidDuration(name string, d time.Duration) error {
	return fmt.Errorf("batch: invalid %s: %v (must be > 0)", name, d)
}

// ErrInvalidCount returns an error for an out-of-range count setting
func ErrInvalidCount(name string, n int) error {
	return fmt.Errorf("batch: invalid %s: %d", name, n)
}
