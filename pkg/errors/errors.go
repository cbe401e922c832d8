package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures in the telemetry core
type ErrorType string

const (
	// ErrorTypeValidation marks a malformed event or argument
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeNotFound marks a missing judgment, bucket or snapshot
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeInternal marks a failure inside a pipeline stage or adapter
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal marks a failure of the persistence sink, cache or bus
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeConfiguration marks invalid settings detected at startup
	ErrorTypeConfiguration ErrorType = "CONFIGURATION"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewValidationErrorf wraps a validator failure
func NewValidationErrorf(err error, format string, args ...any) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external collaborator error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeConfiguration,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether any AppError in err's chain has the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == t {
			return true
		}
		err = appErr.Err
	}
	return false
}
