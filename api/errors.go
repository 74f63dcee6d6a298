package api

import (
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrMissingClientID is returned when a token URL is configured without a client id
	ErrMissingClientID = fmt.Errorf("api: client_id is required with token_url")
	// ErrMissingBatchID is returned when the submit response carries no batch id
	ErrMissingBatchID = fmt.Errorf("api: submit response has no batch_id")
)

// Error constructors

// ErrInvalidBaseURL returns an error for an invalid base URL
func ErrInvalidBaseURL(u string, err error) error {
	if err != nil {
		return fmt.Errorf("api: invalid base url %q: %w", u, err)
	}
	return fmt.Errorf("api: invalid base url %q (must be an absolute http(s) url)", u)
}

// ErrInvalidTimeout returns an error for an invalid timeout
func ErrInvalidTimeout(d time.Duration) error {
	return fmt.Errorf("api: invalid timeout: %v (must be > 0)", d)
}

// ErrInvalidMaxResponseBytes returns an error for an invalid response size cap
func ErrInvalidMaxResponseBytes(n int64) error {
	return fmt.Errorf("api: invalid max response bytes: %d (must be > 0)", n)
}

// ErrEncodeBody wraps a request body encoding failure
func ErrEncodeBody(err error) error {
	return fmt.Errorf("api: encode request body: %w", err)
}

// ErrDecodeBody wraps a response body decoding failure
func ErrDecodeBody(err error) error {
	return fmt.Errorf("api: decode response body: %w", err)
}

// ErrBuildRequest wraps a request construction failure
func ErrBuildRequest(err error) error {
	return fmt.Errorf("api: build request: %w", err)
}

// ErrResponseTooLarge returns an error for a response body over the size cap
func ErrResponseTooLarge(target string, limit int64) error {
	return fmt.Errorf("api: response from %s exceeds %d bytes", target, limit)
}
