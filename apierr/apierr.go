// Package apierr is the error taxonomy for calls to the analysis service.
//
// Every failure surfaced by the api client is exactly one of NetworkError,
// TimeoutError, ServerError, ClientError or AuthError. The retry package
// classifies failures with IsRetryable, and callers branch on cause with
// errors.As.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// maxBodyPreview bounds how much of a response body an error keeps
const maxBodyPreview = 512

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindServer
	KindClient
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Request identifies the call an error belongs to.
type Request struct {
	Method string
	URL    string
}

func (r Request) String() string {
	if r.Method == "" && r.URL == "" {
		return "request"
	}
	return r.Method + " " + r.URL
}

// NetworkError means the service could not be reached: connection refused,
// DNS failure or an aborted request.
type NetworkError struct {
	Request
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("apierr: network error: %s: %v", e.Request, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError means the request did not complete within its deadline.
type TimeoutError struct {
	Request
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("apierr: timeout: %s: %v", e.Request, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// StatusError carries the HTTP status and a preview of the response body.
type StatusError struct {
	Request
	StatusCode int
	Body       string
}

func (e *StatusError) message(kind string) string {
	if e.Body == "" {
		return fmt.Sprintf("apierr: %s error: %s: status %d", kind, e.Request, e.StatusCode)
	}
	return fmt.Sprintf("apierr: %s error: %s: status %d: %s", kind, e.Request, e.StatusCode, e.Body)
}

// ServerError is a 5xx or 429 response.
type ServerError struct{ StatusError }

func (e *ServerError) Error() string { return e.message("server") }

// ClientError is a 4xx response other than 401, 403 and 429.
type ClientError struct{ StatusError }

func (e *ClientError) Error() string { return e.message("client") }

// AuthError is a 401 or 403 response.
type AuthError struct {
	StatusError
	// Refreshed is set when the credentials were already renewed for this
	// request, so another refresh will not help.
	Refreshed bool
}

func (e *AuthError) Error() string { return e.message("auth") }

// Unauthorized reports whether the response was a 401, the only auth failure
// that a credential refresh can fix.
func (e *AuthError) Unauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// FromStatus maps a non-2xx response to its error type. It returns nil for
// 1xx, 2xx and 3xx statuses.
func FromStatus(req Request, status int, body []byte) error {
	if status < 400 {
		return nil
	}
	se := StatusError{Request: req, StatusCode: status, Body: preview(body)}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{StatusError: se}
	case status == http.StatusTooManyRequests || status >= 500:
		return &ServerError{se}
	default:
		return &ClientError{se}
	}
}

// FromTransport maps an error returned by the HTTP transport. Deadline errors
// become TimeoutError; everything else, cancellation included, is a
// NetworkError. Errors already in the taxonomy are returned unchanged.
func FromTransport(req Request, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Request: req, Err: err}
	}
	return &NetworkError{Request: req, Err: err}
}

// KindOf returns the taxonomy kind of err, looking through wrapping.
func KindOf(err error) Kind {
	var (
		netErr     *NetworkError
		timeoutErr *TimeoutError
		serverErr  *ServerError
		clientErr  *ClientError
		authErr    *AuthError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &clientErr):
		return KindClient
	case errors.As(err, &serverErr):
		return KindServer
	case errors.As(err, &timeoutErr):
		return KindTimeout
	case errors.As(err, &netErr):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether the default policy retries err. Network,
// timeout and server errors are retryable; client, auth and unclassified
// errors are fatal.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindServer:
		return true
	default:
		return false
	}
}

// IsUnauthorized reports whether err is a 401 AuthError.
func IsUnauthorized(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Unauthorized()
}

// NeedsRefresh reports whether err is a 401 whose credentials have not been
// renewed yet.
func NeedsRefresh(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Unauthorized() && !authErr.Refreshed
}

// MarkRefreshed flags the AuthError inside err as already refreshed.
func MarkRefreshed(err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		authErr.Refreshed = true
	}
	return err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var (
		serverErr *ServerError
		clientErr *ClientError
		authErr   *AuthError
	)
	switch {
	case errors.As(err, &serverErr):
		return serverErr.StatusCode
	case errors.As(err, &clientErr):
		return clientErr.StatusCode
	case errors.As(err, &authErr):
		return authErr.StatusCode
	default:
		return 0
	}
}

func preview(body []byte) string {
	if len(body) <= maxBodyPreview {
		return string(body)
	}
	return string(body[:maxBodyPreview]) + "..."
}
