package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tutorlink/session-core/internal/domain"
)

// TokenManager handles issuing and validating JWT tokens. Access and refresh
// tokens are signed with different secrets.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenConfig carries the signing material and lifetimes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// NewTokenManager builds a new manager. Secrets are validated at config load.
func NewTokenManager(cfg TokenConfig) *TokenManager {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

// RefreshTTL reports the refresh token lifetime, which also drives the cookie Max-Age.
func (tm *TokenManager) RefreshTTL() time.Duration {
	return tm.refreshTTL
}

// Claims describes JWT payload.
type Claims struct {
	Role domain.Role      `json:"role"`
	Type domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Issue signs a fresh access/refresh pair for the principal.
func (tm *TokenManager) Issue(principal domain.Principal) (domain.TokenPair, error) {
	now := tm.now().Truncate(time.Second)

	access, accessExp, err := tm.sign(principal, domain.TokenTypeAccess, now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, refreshExp, err := tm.sign(principal, domain.TokenTypeRefresh, now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (tm *TokenManager) sign(principal domain.Principal, typ domain.TokenType, now time.Time) (string, time.Time, error) {
	secret, ttl := tm.secretFor(typ)
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Role: principal.Role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tm.issuer,
			Subject:   principal.ID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return tokenString, expiresAt, nil
}

func (tm *TokenManager) secretFor(typ domain.TokenType) ([]byte, time.Duration) {
	if typ == domain.TokenTypeRefresh {
		return tm.refreshSecret, tm.refreshTTL
	}
	return tm.accessSecret, tm.accessTTL
}

// Parse checks signature, expiry and type without consulting any store.
// The verification secret is chosen by the token's declared type, so a
// correctly signed token of the other type reports WrongType.
func (tm *TokenManager) Parse(tokenStr string, expected domain.TokenType) (domain.TokenClaims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		c, ok := token.Claims.(*Claims)
		if !ok || !c.Type.Valid() {
			return nil, errors.New("unknown token type")
		}
		secret, _ := tm.secretFor(c.Type)
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.TokenClaims{}, domain.NewAuthError(domain.AuthExpired, err)
		}
		return domain.TokenClaims{}, domain.NewAuthError(domain.AuthInvalid, err)
	}
	if !parsed.Valid || claims.ID == "" || claims.Subject == "" {
		return domain.TokenClaims{}, domain.NewAuthError(domain.AuthInvalid, errors.New("incomplete claims"))
	}
	if claims.Type != expected {
		return domain.TokenClaims{}, domain.NewAuthError(domain.AuthWrongType,
			fmt.Errorf("got %s token, want %s", claims.Type, expected))
	}

	out := domain.TokenClaims{
		PrincipalID: claims.Subject,
		Role:        claims.Role,
		Type:        claims.Type,
		ExpiresAt:   claims.ExpiresAt.Time,
		JTI:         claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
