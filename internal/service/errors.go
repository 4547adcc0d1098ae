package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrLockContention = errors.New("lock contention")
	ErrNoMoreSteps    = errors.New("no more escalation steps")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// Classify returns the taxonomy name of err. Anything unrecognised is internal.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrLockContention):
		return "lock_contention"
	case errors.Is(err, ErrNoMoreSteps):
		return "no_more_steps"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}

// Retryable reports whether the request may succeed later. Lock contention
// and rate limits clear after a backoff; an invalid state clears once the
// caller re-fetches the campaign and retries against its current status.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockContention) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrRateLimited)
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
