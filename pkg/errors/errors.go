package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on error code so wrapped and cloned variants compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e != nil && e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Generic errors shared across modules.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Workflow configuration errors. Fatal for the request, surfaced to admins.
var (
	ErrNoActiveWorkflow  = New("NO_ACTIVE_WORKFLOW", http.StatusConflict, "no single active workflow for template")
	ErrMalformedWorkflow = New("MALFORMED_WORKFLOW", http.StatusConflict, "workflow levels are malformed")
)

// Authorization errors on approval actions.
var (
	ErrSelfApprovalForbidden = New("SELF_APPROVAL_FORBIDDEN", http.StatusForbidden, "requester cannot act on own request")
	ErrNotAnApprover         = New("NOT_AN_APPROVER", http.StatusForbidden, "actor is not an approver for the current level")
)

// Validation errors on approval actions.
var (
	ErrRejectReasonRequired = New("REJECT_REASON_REQUIRED", http.StatusBadRequest, "a reason is required")
	ErrFieldNotEditable     = New("FIELD_NOT_EDITABLE", http.StatusBadRequest, "field is not editable at the current level")
	ErrInvalidTargetLevel   = New("INVALID_TARGET_LEVEL", http.StatusBadRequest, "send-back target level is invalid")
	ErrInvalidTransition    = New("INVALID_TRANSITION", http.StatusConflict, "operation not valid in current status")
)

// Bulk reconciliation errors.
var (
	ErrNoValidRows    = New("NO_VALID_ROWS", http.StatusUnprocessableEntity, "no rows classified successfully")
	ErrERPUnavailable = New("ERP_UNAVAILABLE", http.StatusBadGateway, "external record store unavailable")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
