package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tutorlink/session-core/internal/api/dto"
	"github.com/tutorlink/session-core/internal/auth"
	"github.com/tutorlink/session-core/internal/domain"
	"github.com/tutorlink/session-core/internal/service"
	apperrors "github.com/tutorlink/session-core/pkg/util/errorutil"
)

const (
	RefreshCookieName = "refreshToken"
	RefreshCookiePath = "/auth"
)

// CookieConfig shapes the refresh cookie.
type CookieConfig struct {
	Secure bool
	MaxAge time.Duration
}

// AuthHandler exposes session endpoints.
type AuthHandler struct {
	auth   *service.AuthService
	cookie CookieConfig
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{auth: authService, cookie: cookie}
}

// SecurityHeaders marks auth responses as uncacheable and unframeable.
func SecurityHeaders(c *fiber.Ctx) error {
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Set(fiber.HeaderXFrameOptions, "DENY")
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderPragma, "no-cache")
	return c.Next()
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	sess, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return err
	}
	h.setRefreshCookie(c, sess.Tokens.RefreshToken)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": sessionResponse(sess)})
}

// Login handles POST /auth/login. Attempts are counted per client IP.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	sess, err := h.auth.Login(c.UserContext(), clientIP(c), req.Email, req.Password)
	if err != nil {
		return err
	}
	h.setRefreshCookie(c, sess.Tokens.RefreshToken)
	return c.JSON(fiber.Map{"data": sessionResponse(sess)})
}

// Refresh handles POST /auth/refresh. Rejected tokens clear the cookie; a
// storage failure leaves it in place so the client can retry.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	pair, err := h.auth.Refresh(c.UserContext(), c.Cookies(RefreshCookieName))
	if err != nil {
		if !errors.Is(err, domain.ErrPersistenceUnavailable) {
			h.clearRefreshCookie(c)
		}
		return err
	}
	h.setRefreshCookie(c, pair.RefreshToken)
	return c.JSON(fiber.Map{"data": dto.AccessTokenResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt,
	}})
}

// Logout handles POST /auth/logout. It always succeeds.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	access, _ := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	h.auth.Logout(c.UserContext(), access, c.Cookies(RefreshCookieName))
	h.clearRefreshCookie(c)
	return c.JSON(fiber.Map{"data": fiber.Map{"loggedOut": true}})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}
	user, err := h.auth.Me(c.UserContext(), *principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"user": dto.NewUserResponse(user)}})
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     RefreshCookiePath,
		MaxAge:   int(h.cookie.MaxAge / time.Second),
		Expires:  time.Now().Add(h.cookie.MaxAge),
		Secure:   h.cookie.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshCookiePath,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   h.cookie.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func sessionResponse(sess *service.Session) dto.SessionResponse {
	return dto.SessionResponse{
		User:            dto.NewUserResponse(sess.User),
		AccessToken:     sess.Tokens.AccessToken,
		AccessExpiresAt: sess.Tokens.AccessExpiresAt,
	}
}

// clientIP honours the configured proxy header and falls back to the peer
// address when the header is absent.
func clientIP(c *fiber.Ctx) string {
	if ip := c.IP(); ip != "" {
		return ip
	}
	return c.Context().RemoteIP().String()
}
