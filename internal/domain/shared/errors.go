// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base sentinels. Domain errors carry one of these as their Kind so
// callers can classify with errors.Is regardless of the wrapping.
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError attaches the owning domain, operation and a base Kind to an
// error without losing the chain.
type DomainError struct {
	Domain  string // e.g., "authorization", "progress", "catalog"
	Op      string // Operation that failed, e.g., "Submit", "Approve"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error renders domain.op, the message and any wrapped cause.
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

// Catalog domain errors
var (
	ErrUserNotFound    = NewDomainError("catalog", "GetUser", ErrNotFound, "user not found")
	ErrCourseNotFound  = NewDomainError("catalog", "GetCourse", ErrNotFound, "course not found")
	ErrModuleNotFound  = NewDomainError("catalog", "GetModule", ErrNotFound, "module not found")
	ErrLessonNotFound  = NewDomainError("catalog", "GetLesson", ErrNotFound, "lesson not found")
	ErrLessonInactive  = NewDomainError("catalog", "GetLesson", ErrInvalidState, "lesson is not active")
	ErrUserNotActive   = NewDomainError("catalog", "GetUser", ErrInvalidState, "user is not active")
	ErrCourseMismatch  = NewDomainError("catalog", "Resolve", ErrInvalidInput, "lesson does not belong to course")
	ErrTrackNotAllowed = NewDomainError("catalog", "CheckTrack", ErrForbidden, "course subject outside user track")
)

// Progress domain errors
var (
	ErrProgressNotFound = NewDomainError("progress", "Get", ErrNotFound, "progress record not found")
	ErrInvalidPercent   = NewDomainError("progress", "Validate", ErrValueOutOfRange, "percentage must be between 0 and 100")
)

// Authorization domain errors
var (
	ErrRequestNotFound     = NewDomainError("authorization", "GetRequest", ErrNotFound, "access request not found")
	ErrGrantNotFound       = NewDomainError("authorization", "GetGrant", ErrNotFound, "grant not found")
	ErrDuplicateRequest    = NewDomainError("authorization", "Submit", ErrAlreadyExists, "pending request already exists for this lesson")
	ErrRequestProcessed    = NewDomainError("authorization", "Resolve", ErrAlreadyProcessed, "request has already been approved or rejected")
	ErrGrantScopeMismatch  = NewDomainError("authorization", "Validate", ErrInvalidEntity, "grant scope does not match its kind")
	ErrAdminRequired       = NewDomainError("authorization", "Resolve", ErrForbidden, "only admins may resolve access requests")
	ErrRejectReasonMissing = NewDomainError("authorization", "Reject", ErrEmptyValue, "rejection reason is required")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a duplicate/conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsForbidden checks if the error is an authorization policy rejection.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsInvalidState checks if the error is a state machine violation.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrStateTransition) ||
		errors.Is(err, ErrAlreadyProcessed)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsStorageUnavailable checks if the error is a persistence failure that the
// caller may retry.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrTimeout)
}
