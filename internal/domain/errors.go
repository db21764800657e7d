package domain

import (
	"errors"
	"fmt"
	"time"
)

// AuthErrorKind enumerates the expected token and login failures.
type AuthErrorKind int

const (
	AuthInvalid AuthErrorKind = iota + 1
	AuthExpired
	AuthRevoked
	AuthWrongType
	AuthRateLimited
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthInvalid:
		return "invalid"
	case AuthExpired:
		return "expired"
	case AuthRevoked:
		return "revoked"
	case AuthWrongType:
		return "wrong_type"
	case AuthRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// AuthError is returned, never panicked, for every expected authentication failure.
// Callers switch on Kind; errors.Is matches any *AuthError with the same Kind.
type AuthError struct {
	Kind       AuthErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *AuthError) Error() string {
	msg := "auth: " + e.Kind.String()
	if e.Kind == AuthRateLimited && e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s (retry after %s)", msg, e.RetryAfter)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches on Kind so callers can compare against the Err* sentinels below.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrTokenInvalid   = &AuthError{Kind: AuthInvalid}
	ErrTokenExpired   = &AuthError{Kind: AuthExpired}
	ErrTokenRevoked   = &AuthError{Kind: AuthRevoked}
	ErrTokenWrongType = &AuthError{Kind: AuthWrongType}
	ErrRateLimited    = &AuthError{Kind: AuthRateLimited}
)

// NewAuthError wraps cause with the given kind.
func NewAuthError(kind AuthErrorKind, cause error) *AuthError {
	return &AuthError{Kind: kind, Err: cause}
}

// NewRateLimitedError reports a lockout with the remaining wait.
func NewRateLimitedError(retryAfter time.Duration) *AuthError {
	return &AuthError{Kind: AuthRateLimited, RetryAfter: retryAfter}
}

// AsAuthError extracts the *AuthError from err, if any.
func AsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

var (
	// ErrNotAuthenticated means no credential was presented.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotAuthorized means the credential is valid but the role is insufficient.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrPersistenceUnavailable means a storage dependency failed or timed out.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidMessage     = errors.New("invalid message")
)

// Unavailable wraps a storage failure so it matches ErrPersistenceUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistenceUnavailable, err)
}
