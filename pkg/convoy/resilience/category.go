// Package resilience protects node invocations against unreliable
// external services. It provides two independent, composable layers:
// retry with exponential backoff for transient failures, and per-class
// circuit breakers that fail fast once failures accumulate.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Category represents how a failure should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: rate limits, timeouts, temporary network issues.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: authentication failures, malformed requests.
	CategoryPermanent

	// CategoryValidation indicates the handler's output failed a
	// business-rule check; re-invoking the same node with feedback may
	// recover it.
	CategoryValidation

	// CategoryNonIdempotent indicates a failure inside an operation
	// with side effects that must not repeat (payment confirmation,
	// order creation). Never retried; surfaced immediately.
	CategoryNonIdempotent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryValidation:
		return "validation"
	case CategoryNonIdempotent:
		return "non_idempotent"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and attempt context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Attempts is the number of attempts that were made.
	Attempts int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: category, Context: context}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Validation creates a validation error.
func Validation(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryValidation, context)
}

// NonIdempotent creates a non-idempotent-operation error.
func NonIdempotent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryNonIdempotent, context)
}

// Categorize determines the category of an arbitrary error.
//
// Explicitly categorized errors keep their category. Context deadline
// and network errors are transient. Everything else is permanent: a
// conservative default that avoids retrying side effects we cannot see.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	if errors.Is(err, context.Canceled) {
		return CategoryPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryTransient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "too many requests", "timeout", "connection refused", "connection reset", "temporarily unavailable", "503", "502", "429"} {
		if strings.Contains(msg, marker) {
			return CategoryTransient
		}
	}

	return CategoryPermanent
}
