package errorutil

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

// Error codes exposed to API clients.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeValidation         = "VALIDATION_FAILED"
	CodeInvalidState       = "INVALID_STATE"
	CodeDuplicateApproval  = "DUPLICATE_APPROVAL"
	CodeConcurrentApproval = "CONCURRENT_APPROVAL"
	CodeMissingComments    = "MISSING_COMMENTS"
	CodeMissingReason      = "MISSING_REASON"
	CodeInvalidLevel       = "INVALID_LEVEL"
	CodePersistence        = "PERSISTENCE_ERROR"
	CodeNotification       = "NOTIFICATION_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. Matching is by Code.
var (
	ErrNotFound           = &DomainError{Code: CodeNotFound}
	ErrUnauthorized       = &DomainError{Code: CodeUnauthorized}
	ErrForbidden          = &DomainError{Code: CodeForbidden}
	ErrValidation         = &DomainError{Code: CodeValidation}
	ErrInvalidState       = &DomainError{Code: CodeInvalidState}
	ErrDuplicateApproval  = &DomainError{Code: CodeDuplicateApproval}
	ErrConcurrentApproval = &DomainError{Code: CodeConcurrentApproval}
	ErrMissingComments    = &DomainError{Code: CodeMissingComments}
	ErrMissingReason      = &DomainError{Code: CodeMissingReason}
	ErrInvalidLevel       = &DomainError{Code: CodeInvalidLevel}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	Detail     string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Detail != "" {
		msg = msg + ": " + e.Detail
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same error code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message, detail string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, Detail: detail, HTTPStatus: status, Details: details}
}

func NewValidationError(detail string, details map[string]any) error {
	return NewDomainError(CodeValidation, "Invalid request", detail, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", capitalize(resource)),
		Detail:     fmt.Sprintf("No %s found with the specified ID", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(detail string) error {
	return NewDomainError(CodeUnauthorized, "Not authenticated", detail, http.StatusUnauthorized, nil)
}

func NewForbidden(detail string, details map[string]any) error {
	return NewDomainError(CodeForbidden, "Not authorized", detail, http.StatusForbidden, details)
}

// NewInvalidState reports a ticket that is not in the state required by the action.
func NewInvalidState(current, required string) error {
	return NewDomainError(CodeInvalidState, "Invalid approval state",
		"Ticket is not ready for this level of approval", http.StatusBadRequest,
		map[string]any{"currentStatus": current, "requiredStatus": required})
}

func NewDuplicateApproval(level int) error {
	return NewDomainError(CodeDuplicateApproval, "Duplicate approval",
		"Ticket has already been approved at this level", http.StatusBadRequest,
		map[string]any{"approvalLevel": level})
}

// NewConcurrentApproval reports that another approver holds the ticket lock.
func NewConcurrentApproval(currentApprover string) error {
	details := map[string]any{}
	if currentApprover != "" {
		details["currentApprover"] = currentApprover
	}
	return NewDomainError(CodeConcurrentApproval, "Concurrent approval",
		"Ticket is currently being approved by another user", http.StatusBadRequest, details)
}

func NewMissingComments(action string) error {
	return NewDomainError(CodeMissingComments, "Missing required fields",
		fmt.Sprintf("Comments are required for %s", action), http.StatusBadRequest, nil)
}

func NewMissingReason() error {
	return NewDomainError(CodeMissingReason, "Missing rejection reason",
		"Rejection reason is required", http.StatusBadRequest, nil)
}

func NewInvalidLevel(level int) error {
	return NewDomainError(CodeInvalidLevel, "Invalid approval level",
		"Approval level must be 1 or 2", http.StatusBadRequest, map[string]any{"approvalLevel": level})
}

func NewPersistenceError(err error) error {
	return &DomainError{
		Code:       CodePersistence,
		Message:    "Server error",
		Detail:     "ticket storage failed",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewNotificationError wraps a delivery failure. Callers log it; it never reaches clients.
func NewNotificationError(channel string, err error) error {
	return &DomainError{
		Code:       CodeNotification,
		Message:    "Notification failed",
		Detail:     channel,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "Server error",
		HTTPStatus: http.StatusInternalServerError,
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
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fromFiberError(fiberErr)
	}
	return NewInternalError(err).(*DomainError)
}

// MapError is ToDomainError for callers that want a plain error back.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

func fromFiberError(err *fiber.Error) *DomainError {
	code := CodeInternal
	switch err.Code {
	case http.StatusBadRequest:
		code = CodeValidation
	case http.StatusUnauthorized:
		code = CodeUnauthorized
	case http.StatusForbidden:
		code = CodeForbidden
	case http.StatusNotFound:
		code = CodeNotFound
	case http.StatusTooManyRequests:
		code = "RATE_LIMITED"
	}
	return &DomainError{
		Code:       code,
		Message:    http.StatusText(err.Code),
		Detail:     err.Message,
		HTTPStatus: err.Code,
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
