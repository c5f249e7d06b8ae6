// Package shared contains common domain types and errors that are used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrInvalidFormat = errors.New("invalid format")
	ErrInvalidPhone  = errors.New("invalid phone")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Infrastructure errors. Never fatal: the in-memory state stays authoritative.
	ErrDurability = errors.New("durability failure")
	ErrTransport  = errors.New("transport failure")
	ErrTimeout    = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "attendance", "dialogue", "notify"
	Op      string // Operation that failed, e.g., "AddStudent"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Attendance domain errors
var (
	ErrTeacherNotFound      = NewDomainError("attendance", "FindTeacher", ErrNotFound, "teacher not found")
	ErrSubjectNotFound      = NewDomainError("attendance", "FindSubject", ErrNotFound, "subject not found")
	ErrStudentNotFound      = NewDomainError("attendance", "FindStudent", ErrNotFound, "student not found")
	ErrSubjectAlreadyExists = NewDomainError("attendance", "AddSubject", ErrAlreadyExists, "subject already exists")
	ErrStudentAlreadyExists = NewDomainError("attendance", "AddStudent", ErrAlreadyExists, "student already registered")
	ErrRoleConflict         = NewDomainError("attendance", "Register", ErrAlreadyExists, "id already holds another role")
	ErrNoPhoneDigits        = NewDomainError("attendance", "AddStudent", ErrInvalidPhone, "phone number has no digits")
	ErrInvalidStatus        = NewDomainError("attendance", "SetAttendance", ErrInvalidInput, "status must be one of P, A, H, N")
	ErrInvalidDate          = NewDomainError("attendance", "SetAttendance", ErrInvalidFormat, "date must be YYYY-MM-DD")
	ErrEmptyName            = NewDomainError("attendance", "Validate", ErrEmptyValue, "name cannot be empty")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrInvalidPhone)
}

// IsForbidden checks if the error is a permission error.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsDurability checks if the error reports a failed checkpoint.
func IsDurability(err error) bool {
	return errors.Is(err, ErrDurability)
}

// IsTransport checks if the error comes from an outbound transport.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout)
}
