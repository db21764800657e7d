package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/tutorlink/session-core/internal/auth"
	"github.com/tutorlink/session-core/internal/config"
	"github.com/tutorlink/session-core/internal/domain"
	"github.com/tutorlink/session-core/internal/repository"
	apperrors "github.com/tutorlink/session-core/pkg/util/errorutil"
)

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email     string
	Password  string
	Role      string
	FirstName string
	LastName  string
}

// Session is what a successful register or login hands back.
type Session struct {
	User   *domain.User
	Tokens domain.TokenPair
}

// AuthService coordinates registration, login and session rotation.
type AuthService struct {
	users      repository.UserRepository
	lifecycle  *auth.Lifecycle
	bcryptCost int
	logger     *zap.Logger
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	UserRepo  repository.UserRepository
	Lifecycle *auth.Lifecycle
	Logger    *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		lifecycle:  deps.Lifecycle,
		bcryptCost: cfg.BcryptCost,
		logger:     logger,
	}
}

// Register creates an account and opens a session for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	role := domain.Role(strings.ToUpper(strings.TrimSpace(in.Role)))
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": in.Role})
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	firstName, lastName := defaultNames(email, role, in.FirstName, in.LastName)
	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FirstName:    firstName,
		LastName:     lastName,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	pair, err := s.lifecycle.Issue(user.Principal())
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return &Session{User: user, Tokens: pair}, nil
}

// Login checks the attempt limit for sourceKey before touching credentials.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, sourceKey, email, password string) (*Session, error) {
	if err := s.lifecycle.CheckLoginAttempt(ctx, sourceKey); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			auth.BurnPasswordCheck(password)
			s.logger.Info("login failed", zap.String("source", sourceKey))
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.logger.Info("login failed", zap.String("source", sourceKey))
			return nil, domain.ErrInvalidCredentials
		}
		return nil, apperrors.NewInternalError(err)
	}

	if err := s.lifecycle.ResetLoginAttempts(ctx, sourceKey); err != nil {
		s.logger.Warn("reset login attempts failed", zap.String("source", sourceKey), zap.Error(err))
	}

	pair, err := s.lifecycle.Issue(user.Principal())
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{User: user, Tokens: pair}, nil
}

// Refresh rotates the refresh token into a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return domain.TokenPair{}, domain.ErrNotAuthenticated
	}
	pair, _, err := s.lifecycle.Refresh(ctx, refreshToken)
	return pair, err
}

// Logout revokes whichever tokens were presented. Revocation is best effort;
// failures are logged and never surface to the caller.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) {
	if err := s.lifecycle.Logout(ctx, accessToken, refreshToken); err != nil {
		s.logger.Warn("logout revocation incomplete", zap.Error(err))
	}
}

// Me loads the account behind principal.
func (s *AuthService) Me(ctx context.Context, principal domain.Principal) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, principal.ID)
	if errors.Is(err, domain.ErrUserNotFound) {
		// Token outlived its account.
		return nil, domain.ErrNotAuthenticated
	}
	return user, err
}

// defaultNames fills missing names from the email local part and the role.
func defaultNames(email string, role domain.Role, first, last string) (string, string) {
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if first == "" {
		first, _, _ = strings.Cut(email, "@")
	}
	if last == "" {
		r := strings.ToLower(string(role))
		last = strings.ToUpper(r[:1]) + r[1:]
	}
	return first, last
}
