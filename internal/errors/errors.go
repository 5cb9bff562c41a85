// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrSetupNotFound       = errors.New("setup not found")
	ErrCacheMiss           = errors.New("cache miss")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrCircuitOpen         = errors.New("circuit breaker is open")
	ErrRateLimited         = errors.New("rate limited")
	ErrTimeout             = errors.New("operation timed out")
	ErrInvalidEnum         = errors.New("invalid enum value")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrDatabaseError       = errors.New("database error")
)

// DecodeError reports an external payload that failed boundary validation.
type DecodeError struct {
	Source string
	Field  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode error [%s] %s: %s", e.Source, e.Field, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("decode error [%s]: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode error [%s]: %s", e.Source, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewDecodeError creates a new DecodeError.
func NewDecodeError(source, field, reason string, err error) *DecodeError {
	return &DecodeError{
		Source: source,
		Field:  field,
		Reason: reason,
		Err:    err,
	}
}

// ProviderError represents a failed call to an external collaborator.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error [%s] %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Err:      err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
