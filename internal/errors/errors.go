package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the moderation and auth taxonomy
var (
	// ErrNotFound - item or resource absent; for moderation paths this is
	// "already processed" and absorbed as a no-op, not a failure
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists - idempotent re-delivery of an insert; absorbed as a no-op
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized - event authenticity check failed; reject, no state change
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedRequest - instruction could not be parsed; reject, no state change
	ErrMalformedRequest = errors.New("malformed request")

	// ErrInvalidTransition - requested status change is not defined by the
	// moderation state machine; reported to the caller, never fatal
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStorageUnavailable - durable store I/O failed; fatal to the current
	// operation, retry policy belongs to the caller
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrRetryableAuth - auth step failed but the state machine did not move;
	// the caller may resubmit
	ErrRetryableAuth = errors.New("retryable auth error")

	// ErrAuthFailed - credential exchange failed; state reverts to Unauthenticated
	ErrAuthFailed = errors.New("auth failed")

	// ErrTimeout - external call exceeded its deadline; no partial transition
	ErrTimeout = errors.New("timeout")
)

// RateLimitedError is a distinguished sub-condition of ErrRetryableAuth
// carrying the provider's back-off hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRetryableAuth
}

// RateLimited builds a rate-limit condition with the given back-off hint.
func RateLimited(retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

// RetryAfter extracts the back-off hint when err is a rate-limit condition.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// NotFound wraps a message as a not-found condition.
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// AlreadyExists wraps a message as an already-exists condition.
func AlreadyExists(message string) error {
	return fmt.Errorf("%s: %w", message, ErrAlreadyExists)
}

// Unauthorized wraps a message as an unauthorized condition.
func Unauthorized(message string) error {
	return fmt.Errorf("%s: %w", message, ErrUnauthorized)
}

// Malformed wraps a message as a malformed-request condition.
func Malformed(message string) error {
	return fmt.Errorf("%s: %w", message, ErrMalformedRequest)
}

// InvalidTransition wraps a message as an invalid-transition condition.
func InvalidTransition(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidTransition)
}

// StorageUnavailable wraps an underlying I/O error as a storage condition.
func StorageUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%v: %w", err, ErrStorageUnavailable)
}

// IsCategory checks if err belongs to a specific category.
func IsCategory(err, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// Category returns the taxonomy name for an error, for logging and acks.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrAlreadyExists):
		return "AlreadyExists"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrMalformedRequest):
		return "MalformedRequest"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrStorageUnavailable):
		return "StorageUnavailable"
	case errors.Is(err, ErrRetryableAuth):
		return "RetryableAuthError"
	case errors.Is(err, ErrAuthFailed):
		return "AuthFailed"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	default:
		return "Unknown"
	}
}
