package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Common errors
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrUserNotFound      = errors.New("user not found")
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrPlanNotFound      = errors.New("plan not found")
	ErrSlugExhausted     = errors.New("slug candidates exhausted")
	ErrSlugConflict      = errors.New("slug already taken")
	ErrInvalidSlug       = errors.New("invalid slug format")
	ErrDomainTaken       = errors.New("domain already taken")
	ErrInvalidDomain     = errors.New("invalid domain")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrUsernameExhausted = errors.New("username candidates exhausted")
	ErrOrderCompleted    = errors.New("order already completed")
	ErrOrderWrongStatus  = errors.New("order not in a provisionable status")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrTenantRequired    = errors.New("tenant must be specified")
	ErrForbidden         = errors.New("forbidden")
	ErrRateLimited       = errors.New("rate limited")
)

// Error codes of the taxonomy surfaced at the API boundary.
const (
	CodeNotFound     = "NOT_FOUND"
	CodePrecondition = "PRECONDITION_FAILED"
	CodeConflict     = "CONFLICT"
	CodeExternal     = "EXTERNAL_SERVICE"
	CodeValidation   = "VALIDATION"
)

// Reason distinguishes precondition failures that need different remediation.
type Reason string

const (
	ReasonExpired     Reason = "expired"
	ReasonCompleted   Reason = "completed"
	ReasonWrongStatus Reason = "wrong_status"
)

// AppError represents an application error with context
type AppError struct {
	Code    string
	Message string
	Field   string // offending input field for conflicts and validation errors
	Reason  Reason // set for precondition failures
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NotFound reports a missing resource. The message never says what almost matched.
func NotFound(message string, err error) *AppError {
	return NewAppError(CodeNotFound, message, err)
}

// PreconditionFailed reports an operation refused because of the current state.
func PreconditionFailed(reason Reason, message string, err error) *AppError {
	e := NewAppError(CodePrecondition, message, err)
	e.Reason = reason
	return e
}

// Conflict reports a uniqueness clash on field.
func Conflict(field, message string, err error) *AppError {
	e := NewAppError(CodeConflict, message, err)
	e.Field = field
	return e
}

// ExternalService reports a failing or misbehaving upstream.
func ExternalService(message string, err error) *AppError {
	return NewAppError(CodeExternal, message, err)
}

// Validation reports invalid input on field.
func Validation(field, message string, err error) *AppError {
	e := NewAppError(CodeValidation, message, err)
	e.Field = field
	return e
}

// CodeOf returns the taxonomy code of err, or "" when err carries none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// As is errors.As specialised to *AppError.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

func IsNotFound(err error) bool     { return CodeOf(err) == CodeNotFound }
func IsPrecondition(err error) bool { return CodeOf(err) == CodePrecondition }
func IsConflict(err error) bool     { return CodeOf(err) == CodeConflict }
func IsExternal(err error) bool     { return CodeOf(err) == CodeExternal }
func IsValidation(err error) bool   { return CodeOf(err) == CodeValidation }

// IsUniqueViolation reports whether err is a storage-level uniqueness failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is and New re-export the standard helpers so callers need one errors import.
var (
	Is  = errors.Is
	New = errors.New
)
