package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by storage implementations
var (
	// ErrNotFound is returned when an account or transaction does not exist
	ErrNotFound = errors.New("not found")

	// ErrConcurrentUpdate is returned when an append lost the race for an account's chain tail
	ErrConcurrentUpdate = errors.New("concurrent update of account ledger")
)

// ValidationError describes a single field-level rule violation
type ValidationError struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Source  string `json:"source,omitempty"`
}

func (v ValidationError) Error() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// DomainError is the single error kind returned across the ledger boundary.
// A DomainError with Errors attached is a validation failure; one without is
// a rejected request (not found, unauthorized) or a wrapped infrastructure failure.
type DomainError struct {
	Message string
	Errors  []ValidationError
	cause   error
}

// NewDomainError creates a DomainError carrying zero or more validation errors
func NewDomainError(message string, errs ...ValidationError) *DomainError {
	return &DomainError{
		Message: message,
		Errors:  errs,
	}
}

// WrapDomainError creates a DomainError that keeps cause reachable through errors.Is/As
func WrapDomainError(message string, cause error) *DomainError {
	return &DomainError{
		Message: message,
		cause:   cause,
	}
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	for i, v := range e.Errors {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(v.Error())
	}

	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}

	return b.String()
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

// IsValidation reports whether the error carries field-level violations
func (e *DomainError) IsValidation() bool {
	return len(e.Errors) > 0
}
