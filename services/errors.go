package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound               ErrorType = "not_found"
	ErrorTypeValidation             ErrorType = "validation"
	ErrorTypeUnauthorized           ErrorType = "unauthorized"
	ErrorTypeAuthenticationRequired ErrorType = "authentication_required"
	ErrorTypeInvalidCredentials     ErrorType = "invalid_credentials"
	ErrorTypeTokenExpired           ErrorType = "token_expired"
	ErrorTypeForbidden              ErrorType = "forbidden"
	ErrorTypeRateLimit              ErrorType = "rate_limit"
	ErrorTypeConflict               ErrorType = "conflict"
	ErrorTypeInternal               ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	ErrPersonNotFound = NewDomainError(ErrorTypeNotFound, "Person not found", nil)
	ErrSelfDelete     = NewDomainError(ErrorTypeValidation, "cannot delete the current user", nil)

	ErrLoginFailed            = NewDomainError(ErrorTypeUnauthorized, "Username or Password are wrong!", nil)
	ErrAuthenticationRequired = NewDomainError(ErrorTypeAuthenticationRequired, "Authentication failed!", nil)

	// ErrDuplicateToken is returned when a freshly issued token collides with a stored one
	ErrDuplicateToken = NewDomainError(ErrorTypeConflict, "token collision", nil)
)

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorMessage returns the client-facing message of a domain error
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
