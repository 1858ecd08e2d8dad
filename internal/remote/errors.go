// Package remote provides an HTTP client for the jobproof upload service
// with retry, error classification, and the legacy one-shot upload contract.
package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, remote.ErrTokenRejected) to check.
var (
	// ErrValidation covers 400 responses: a required upload field was
	// missing or malformed. Never retried.
	ErrValidation = errors.New("remote: invalid request")

	// ErrAuthExchange is returned when the one-time authorization code is
	// rejected or already consumed. The user must re-authenticate.
	ErrAuthExchange = errors.New("remote: auth exchange rejected")

	// ErrTokenRejected covers 401/403 responses on token-mode requests: the
	// invite token is missing, revoked, or unknown. Terminal, no retry.
	ErrTokenRejected = errors.New("remote: token rejected")

	// ErrNotFound covers 404 responses. Immediately after a deployment this
	// can be a propagation delay; see LegacyClient.
	ErrNotFound = errors.New("remote: not found")

	ErrConflict  = errors.New("remote: conflict")
	ErrThrottled = errors.New("remote: throttled")
	ErrServer    = errors.New("remote: server error")
)

// ServiceError wraps a sentinel error with HTTP status code, request ID,
// and the service error message body for debugging.
type ServiceError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *ServiceError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("remote: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("remote: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrTokenRejected
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServer
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried
// on idempotent requests.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
