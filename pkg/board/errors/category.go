// Package errors provides error classification and retry policy for the
// board engine.
//
// The package implements a layered approach:
//   - Categorization: classify failures so callers pick the right recovery
//   - Retry: bounded retries with exponential backoff for transient failures
//
// Content-validation failures (diagram syntax, malformed table JSON) are a
// distinct category because retrying the same request verbatim rarely helps;
// the derivation layer regenerates with the previous failure as context.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: stream read failures, timeouts, 5xx responses.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: authentication failures, cancelled contexts.
	CategoryPermanent

	// CategoryContentInvalid indicates the generated content failed
	// validation. Regeneration (with failure context) may help.
	CategoryContentInvalid

	// CategoryQuota indicates a board or node limit was hit.
	// Never retried automatically; surfaced to the user.
	CategoryQuota
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryContentInvalid:
		return "content_invalid"
	case CategoryQuota:
		return "quota"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Context: context}
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Context: context}
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	// Already-categorized errors keep their category.
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var quotaErr *QuotaError
	if errors.As(err, &quotaErr) {
		return CategoryQuota
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 429, 503, 504:
			return CategoryTransient
		case 401, 403:
			return CategoryPermanent
		case 402:
			return CategoryQuota
		default:
			if httpErr.StatusCode >= 500 {
				return CategoryTransient
			}
			return CategoryPermanent
		}
	}

	var renderErr *RenderError
	if errors.As(err, &renderErr) {
		return CategoryContentInvalid
	}

	var contentErr *ContentError
	if errors.As(err, &contentErr) {
		return CategoryContentInvalid
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return CategoryTransient
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryPermanent
	}

	// Unknown errors are permanent (fail safe).
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried as-is.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsContentInvalid reports whether regeneration with failure context may help.
func IsContentInvalid(err error) bool {
	return Categorize(err) == CategoryContentInvalid
}

// IsQuota reports whether the error is a hard limit that must be surfaced.
func IsQuota(err error) bool {
	return Categorize(err) == CategoryQuota
}
