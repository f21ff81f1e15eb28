package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to callers.
const (
	CodePolicyNotFound       = "POLICY_NOT_FOUND"
	CodeTransitionNotAllowed = "TRANSITION_NOT_ALLOWED"
	CodeInsufficientRole     = "INSUFFICIENT_ROLE"
	CodeReasonRequired       = "REASON_REQUIRED"
	CodeNoOpTransition       = "NO_OP_TRANSITION"
	CodeStaleTransition      = "STALE_TRANSITION"
	CodeAlreadyTracked       = "ALREADY_TRACKED"
	CodeTrackingClosed       = "TRACKING_CLOSED"
	CodeStorageUnavailable   = "STORAGE_UNAVAILABLE"
	CodeTicketBusy           = "TICKET_BUSY"
	CodeNotFound             = "NOT_FOUND"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeInternal             = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. Any DomainError with the same code matches.
var (
	ErrPolicyNotFound       = &DomainError{Code: CodePolicyNotFound}
	ErrTransitionNotAllowed = &DomainError{Code: CodeTransitionNotAllowed}
	ErrInsufficientRole     = &DomainError{Code: CodeInsufficientRole}
	ErrReasonRequired       = &DomainError{Code: CodeReasonRequired}
	ErrNoOpTransition       = &DomainError{Code: CodeNoOpTransition}
	ErrStaleTransition      = &DomainError{Code: CodeStaleTransition}
	ErrAlreadyTracked       = &DomainError{Code: CodeAlreadyTracked}
	ErrTrackingClosed       = &DomainError{Code: CodeTrackingClosed}
	ErrStorageUnavailable   = &DomainError{Code: CodeStorageUnavailable}
	ErrTicketBusy           = &DomainError{Code: CodeTicketBusy}
	ErrNotFound             = &DomainError{Code: CodeNotFound}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewPolicyNotFound(classification, priority string) error {
	return NewDomainError(CodePolicyNotFound, "no SLA policy for classification and priority",
		http.StatusUnprocessableEntity, map[string]any{
			"classification": classification,
			"priority":       priority,
		})
}

func NewTransitionNotAllowed(details map[string]any) error {
	return NewDomainError(CodeTransitionNotAllowed, "transition not allowed", http.StatusUnprocessableEntity, details)
}

func NewInsufficientRole(details map[string]any) error {
	return NewDomainError(CodeInsufficientRole, "role may not perform this transition", http.StatusForbidden, details)
}

func NewReasonRequired(details map[string]any) error {
	return NewDomainError(CodeReasonRequired, "a reason is required for this transition", http.StatusBadRequest, details)
}

func NewNoOpTransition(details map[string]any) error {
	return NewDomainError(CodeNoOpTransition, "source and target status are the same", http.StatusBadRequest, details)
}

func NewStaleTransition(details map[string]any) error {
	return NewDomainError(CodeStaleTransition, "ticket status changed since it was read", http.StatusConflict, details)
}

func NewAlreadyTracked(ticketID string) error {
	return NewDomainError(CodeAlreadyTracked, "ticket SLA is already tracked", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

func NewTrackingClosed(ticketID string) error {
	return NewDomainError(CodeTrackingClosed, "ticket SLA tracking is closed", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

// NewStorageUnavailable wraps a collaborator failure. Callers may retry.
func NewStorageUnavailable(err error, details map[string]any) error {
	return &DomainError{
		Code:       CodeStorageUnavailable,
		Message:    "storage unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    details,
		Err:        err,
	}
}

// NewTicketBusy reports that the ticket's exclusivity scope was not entered in time.
func NewTicketBusy(ticketID string, err error) error {
	return &DomainError{
		Code:       CodeTicketBusy,
		Message:    "ticket is busy, retry later",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"ticket_id": ticketID},
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// CodeOf returns the DomainError code of err, or CodeInternal.
func CodeOf(err error) string {
	if de := ToDomainError(err); de != nil {
		return de.Code
	}
	return ""
}

// MapError ensures err is a DomainError, wrapping unknown errors as storage failures.
func MapError(err error, details map[string]any) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewStorageUnavailable(err, details)
}
