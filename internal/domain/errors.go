package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeProtocol   ErrorType = "protocol"
	ErrorTypeJob        ErrorType = "job"
	ErrorTypeSynthesis  ErrorType = "synthesis"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeCache      ErrorType = "cache"
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

// IsType reports whether any error in err's chain is a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Type == errType {
			return true
		}
		err = de.Err
	}
	return false
}

// Common error constructors
func TransportError(message string, err error) *DomainError {
	return NewError(ErrorTypeTransport, message, err)
}

func ProtocolError(message string, err error) *DomainError {
	return NewError(ErrorTypeProtocol, message, err)
}

func JobError(message string, err error) *DomainError {
	return NewError(ErrorTypeJob, message, err)
}

func SynthesisError(message string, err error) *DomainError {
	return NewError(ErrorTypeSynthesis, message, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func CacheError(message string, err error) *DomainError {
	return NewError(ErrorTypeCache, message, err)
}
