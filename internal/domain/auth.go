package domain

import "time"

// TokenType separates short-lived access tokens from single-use refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Valid reports whether t is a known token type.
func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// TokenClaims is the verified content of a signed token.
type TokenClaims struct {
	PrincipalID string
	Role        Role
	Type        TokenType
	IssuedAt    time.Time
	ExpiresAt   time.Time
	JTI         string
}

// Principal returns the identity the claims were issued for.
func (c TokenClaims) Principal() Principal {
	return Principal{ID: c.PrincipalID, Role: c.Role}
}

// RevocationEntry is the denial record for this token.
func (c TokenClaims) RevocationEntry() RevocationEntry {
	return RevocationEntry{JTI: c.JTI, ExpiresAt: c.ExpiresAt}
}

// TokenPair is the result of login, registration or refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RevocationEntry marks a token id as denied until its natural expiry.
type RevocationEntry struct {
	JTI       string
	ExpiresAt time.Time
}

// AttemptResult is the outcome of counting one login attempt.
type AttemptResult struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
}
