package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tutorlink/session-core/internal/domain"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer access tokens and stores the principal.
type AuthMiddleware struct {
	lifecycle *Lifecycle
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(lifecycle *Lifecycle) *AuthMiddleware {
	return &AuthMiddleware{lifecycle: lifecycle}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, ok := BearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return domain.ErrNotAuthenticated
	}

	claims, err := m.lifecycle.Verify(c.UserContext(), token, domain.TokenTypeAccess)
	if err != nil {
		return err
	}

	principal := claims.Principal()
	c.Locals(principalKey, &principal)
	return c.Next()
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.Principal)
	return principal, ok
}
