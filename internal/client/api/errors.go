package api

import (
	"errors"
	"fmt"
)

var (
	// ErrOffline wraps transport failures: DNS, refused connections, timeouts.
	// It never wraps a crypto or protocol error.
	ErrOffline = errors.New("server unreachable")

	// ErrUnauthorized is returned on 401
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrRateLimited is returned when 429 persists past the retry budget
type ErrRateLimited struct {
	RetryAfter int // seconds
}

func (e ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfter)
}

// StatusError is any other non-2xx response
type StatusError struct {
	Status        int
	Message       string
	CorrelationID string
}

func (e *StatusError) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("server returned %d: %s (correlation_id=%s)", e.Status, e.Message, e.CorrelationID)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}
