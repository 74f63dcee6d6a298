package vlist

import (
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrInvalidConfig is returned when a renderer is built without a registry or render func
	ErrInvalidConfig = fmt.Errorf("vlist: invalid config")
)

// ErrInvalidItemHeight returns an error for a non-positive item height
func ErrInvalidItemHeight(h float64) error {
	return fmt.Errorf("vlist: invalid item height: %v (must be > 0)", h)
}

// ErrInvalidViewportHeight returns an error for a negative viewport height
func ErrInvalidViewportHeight(h float64) error {
	return fmt.Errorf("vlist: invalid viewport height: %v (must be >= 0)", h)
}

// ErrInvalidBufferSize returns an error for a negative buffer size
func ErrInvalidBufferSize(n int) error {
	return fmt.Errorf("vlist: invalid buffer size: %d (must be >= 0)", n)
}

// ErrInvalidFrameInterval returns an error for a non-positive frame interval
func ErrInvalidFrameInterval(d time.Duration) error {
	return fmt.Errorf("vlist: invalid frame interval: %v (must be > 0)", d)
}
