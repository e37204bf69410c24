package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeInsufficientCredits ErrorType = "insufficient_credits"
	ErrorTypeBackendUnavailable  ErrorType = "backend_unavailable"
	ErrorTypeMalformedPayload    ErrorType = "malformed_payload"
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeConflict            ErrorType = "conflict"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeConfig              ErrorType = "config"
	ErrorTypeIO                  ErrorType = "io"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether err, or any error it wraps, is a DomainError of type t.
func IsType(err error, t ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if de.Type == t {
			return true
		}
		// A domain error may wrap another one of a different type.
		return de.Err != nil && IsType(de.Err, t)
	}
	return false
}

// TypeOf returns the type of the outermost DomainError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// Common error constructors
func InsufficientCreditsError(message string, err error) *DomainError {
	return NewError(ErrorTypeInsufficientCredits, message, err)
}

func BackendUnavailableError(message string, err error) *DomainError {
	return NewError(ErrorTypeBackendUnavailable, message, err)
}

func MalformedPayloadError(message string, err error) *DomainError {
	return NewError(ErrorTypeMalformedPayload, message, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ConflictError(message string, err error) *DomainError {
	return NewError(ErrorTypeConflict, message, err)
}

func NotFoundError(message string, err error) *DomainError {
	return NewError(ErrorTypeNotFound, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}
