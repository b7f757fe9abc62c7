package sources

import (
	"fmt"
	"time"
)

type AuthenticationError struct {
	StatusCode int
	Reason     string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("reddit authentication failed (status %d): %s", e.StatusCode, e.Reason)
}

type RateLimitError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("reddit rate limited %s, retry after %s", e.Endpoint, e.RetryAfter)
}

// TransportError covers network failures, unexpected status codes and
// undecodable responses. StatusCode is 0 when no response was received.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("reddit %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("reddit %s returned status %d: %v", e.Endpoint, e.StatusCode, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func truncate(msg string) string {
	if len(msg) > 300 {
		return msg[:300] + "..."
	}
	return msg
}
