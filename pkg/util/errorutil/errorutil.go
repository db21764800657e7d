package errorutil

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/tutorlink/session-core/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
	// RetryAfter is rendered as the Retry-After header when positive.
	RetryAfter time.Duration
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Message shown for every authentication failure, whatever the cause.
const unauthorizedMessage = "invalid or expired credentials"

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewRateLimited(retryAfter time.Duration) error {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return &DomainError{
		Code:       "RATE_LIMITED",
		Message:    "too many attempts, try again later",
		HTTPStatus: http.StatusTooManyRequests,
		Details:    map[string]any{"retry_after_seconds": seconds},
		RetryAfter: time.Duration(seconds) * time.Second,
	}
}

func NewUnavailable(err error) error {
	return &DomainError{
		Code:       "PERSISTENCE_UNAVAILABLE",
		Message:    "service temporarily unavailable, retry later",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts domain and generic errors to DomainError.
// Authentication errors are checked before persistence errors: a verify that
// failed closed carries both and must still read as 401.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var mapped error
	if authErr, ok := domain.AsAuthError(err); ok {
		if authErr.Kind == domain.AuthRateLimited {
			mapped = NewRateLimited(authErr.RetryAfter)
		} else {
			mapped = &DomainError{Code: "UNAUTHORIZED", Message: unauthorizedMessage, HTTPStatus: http.StatusUnauthorized, Err: err}
		}
	} else {
		switch {
		case errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, domain.ErrInvalidCredentials):
			mapped = &DomainError{Code: "UNAUTHORIZED", Message: unauthorizedMessage, HTTPStatus: http.StatusUnauthorized, Err: err}
		case errors.Is(err, domain.ErrNotAuthorized):
			mapped = NewForbidden("insufficient role")
		case errors.Is(err, domain.ErrPersistenceUnavailable):
			mapped = NewUnavailable(err)
		case errors.Is(err, domain.ErrInvalidMessage):
			mapped = NewValidationError(err.Error(), nil)
		case errors.Is(err, domain.ErrEmailTaken):
			mapped = NewConflict("email already registered", nil)
		case errors.Is(err, domain.ErrUserNotFound):
			mapped = NewNotFound("user", nil)
		default:
			mapped = NewInternalError(err)
		}
	}
	de, _ := mapped.(*DomainError)
	return de
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
