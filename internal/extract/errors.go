package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyResponse means the service answered but returned no usable content.
var ErrEmptyResponse = errors.New("empty response from completion service")

// ServiceError is any failure of a completion call: transport, auth, rate
// limit, or an answer with no content.
type ServiceError struct {
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion service error (status %d): %s", e.StatusCode, truncate(msg, 200))
	}
	return fmt.Sprintf("completion service error: %s", truncate(msg, 200))
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed: rate limits,
// server errors and transport failures.
func (e *ServiceError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	case e.Err == nil, errors.Is(e.Err, ErrEmptyResponse):
		return false
	case errors.Is(e.Err, context.Canceled), errors.Is(e.Err, context.DeadlineExceeded):
		return false
	}
	return true
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Retryable()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
