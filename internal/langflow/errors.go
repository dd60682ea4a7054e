package langflow

import (
	"fmt"
	"time"
)

// TimeoutError indicates the run call produced no response within the total
// request timeout, after retries were exhausted.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("langflow: request timed out after %s", e.Timeout)
}

// APIError indicates Langflow answered with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("langflow: API returned %d", e.StatusCode)
}

// TransportError indicates a connection-level failure before any HTTP
// response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("langflow: request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
