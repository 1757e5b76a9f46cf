package errors

import (
	"fmt"
	"time"
)

// HTTPError represents a backend API error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// TimeoutError indicates a generation attempt exceeded its watchdog deadline.
type TimeoutError struct {
	Operation string
	Limit     time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Limit, e.Operation)
}

// StreamError indicates the token stream failed mid-flight.
type StreamError struct {
	NodeID  string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream for node %s: %s: %v", e.NodeID, e.Message, e.Err)
	}
	return fmt.Sprintf("stream for node %s: %s", e.NodeID, e.Message)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// RenderError indicates generated content failed renderer validation.
// Renderer names the failing renderer (e.g. "Mermaid") so retry policy
// can distinguish diagram failures from other content problems.
type RenderError struct {
	Renderer string
	Message  string
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return fmt.Sprintf("%s render error: %s", e.Renderer, e.Message)
}

// ContentError indicates accumulated content never became syntactically
// valid (e.g. the final table text is not parseable JSON).
type ContentError struct {
	Kind    string
	Message string
}

// Error implements the error interface.
func (e *ContentError) Error() string {
	return fmt.Sprintf("invalid %s content: %s", e.Kind, e.Message)
}

// QuotaError indicates a board or node limit was reached.
// Quota errors are surfaced to the user and never retried automatically.
type QuotaError struct {
	Resource string
	Limit    int
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("quota exceeded for %s (limit %d)", e.Resource, e.Limit)
	}
	return fmt.Sprintf("quota exceeded for %s", e.Resource)
}
