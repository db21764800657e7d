package dto

import (
	"time"

	"github.com/tutorlink/session-core/internal/domain"
)

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=4,max=72"`
	Role      string `json:"role" validate:"required,role"`
	FirstName string `json:"firstName" validate:"omitempty,max=100"`
	LastName  string `json:"lastName" validate:"omitempty,max=100"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserResponse is the public shape of an account.
type UserResponse struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}

// SessionResponse is returned by register and login.
type SessionResponse struct {
	User            UserResponse `json:"user"`
	AccessToken     string       `json:"accessToken"`
	AccessExpiresAt time.Time    `json:"accessExpiresAt"`
}

// AccessTokenResponse is returned by refresh.
type AccessTokenResponse struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		Role:       string(u.Role),
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		LastActive: u.LastActive,
	}
}
