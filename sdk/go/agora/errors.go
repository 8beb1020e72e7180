// Package agora provides a Go client for the Agora action protocol API.
package agora

import (
	"errors"
	"fmt"
)

// Error represents an error from the Agora API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("agora: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsRejected returns true if the server rejected the action before
// persisting it (schema violation or unknown action).
func IsRejected(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == "action_rejected"
	}
	return false
}

// IsFault returns true if the action was persisted but its handler failed.
func IsFault(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == "system_fault"
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}
