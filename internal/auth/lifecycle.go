package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tutorlink/session-core/internal/domain"
	"github.com/tutorlink/session-core/internal/observability"
)

// RevocationStore is the durable set of denied token ids.
type RevocationStore interface {
	// Revoke inserts the entry if its jti is absent. inserted is false when it was already revoked.
	Revoke(ctx context.Context, entry domain.RevocationEntry) (inserted bool, err error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Sweep deletes at most batch entries whose expiry is at or before now.
	Sweep(ctx context.Context, now time.Time, batch int) (int, error)
}

// AttemptStore counts login attempts per source key. Attempt must check and
// count atomically for a given key.
type AttemptStore interface {
	Attempt(ctx context.Context, key string, max int, window time.Duration, now time.Time) (domain.AttemptResult, error)
	Reset(ctx context.Context, key string) error
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// LifecycleConfig tunes store timeouts and login throttling.
type LifecycleConfig struct {
	StoreTimeout     time.Duration
	MaxLoginAttempts int
	LoginWindow      time.Duration
}

// Lifecycle issues, verifies, rotates and revokes token pairs.
type Lifecycle struct {
	tokens       *TokenManager
	revocations  RevocationStore
	attempts     AttemptStore
	storeTimeout time.Duration
	maxAttempts  int
	window       time.Duration
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

// NewLifecycle wires the token manager to its stores.
func NewLifecycle(tokens *TokenManager, revocations RevocationStore, attempts AttemptStore, cfg LifecycleConfig, logger *zap.Logger, metrics *observability.Metrics) *Lifecycle {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 5
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{
		tokens:       tokens,
		revocations:  revocations,
		attempts:     attempts,
		storeTimeout: cfg.StoreTimeout,
		maxAttempts:  cfg.MaxLoginAttempts,
		window:       cfg.LoginWindow,
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
	}
}

// WithClock replaces the time source used for login windows.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// Tokens exposes the underlying token manager.
func (l *Lifecycle) Tokens() *TokenManager {
	return l.tokens
}

// Issue signs a new pair. It has no effect on the revocation store.
func (l *Lifecycle) Issue(principal domain.Principal) (domain.TokenPair, error) {
	pair, err := l.tokens.Issue(principal)
	if err != nil {
		return domain.TokenPair{}, err
	}
	l.metrics.RecordAuth("issue", "ok")
	return pair, nil
}

// Verify runs the stateless checks, then the revocation lookup. A lookup that
// fails or times out is reported as Revoked.
func (l *Lifecycle) Verify(ctx context.Context, token string, expected domain.TokenType) (domain.TokenClaims, error) {
	claims, err := l.tokens.Parse(token, expected)
	if err != nil {
		l.recordFailure("verify", err)
		return domain.TokenClaims{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	revoked, err := l.revocations.IsRevoked(ctx, claims.JTI)
	if err != nil {
		l.logger.Warn("revocation lookup failed, rejecting token",
			zap.String("principal_id", claims.PrincipalID), zap.Error(err))
		l.metrics.RecordAuth("verify", "store_error")
		return domain.TokenClaims{}, domain.NewAuthError(domain.AuthRevoked, domain.Unavailable("revocation lookup", err))
	}
	if revoked {
		l.metrics.RecordAuth("verify", domain.AuthRevoked.String())
		return domain.TokenClaims{}, domain.ErrTokenRevoked
	}
	l.metrics.RecordAuth("verify", "ok")
	return claims, nil
}

// Refresh redeems a refresh token exactly once. The conditional insert of its
// jti decides concurrent redemptions: only the caller whose insert lands gets
// a new pair.
func (l *Lifecycle) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, domain.TokenClaims, error) {
	claims, err := l.Verify(ctx, refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return domain.TokenPair{}, domain.TokenClaims{}, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	inserted, err := l.revocations.Revoke(storeCtx, claims.RevocationEntry())
	if err != nil {
		l.metrics.RecordAuth("refresh", "store_error")
		return domain.TokenPair{}, domain.TokenClaims{}, domain.Unavailable("revoke refresh token", err)
	}
	if !inserted {
		l.logger.Info("refresh token replayed", zap.String("principal_id", claims.PrincipalID))
		l.metrics.RecordAuth("refresh", domain.AuthRevoked.String())
		return domain.TokenPair{}, domain.TokenClaims{}, domain.NewAuthError(domain.AuthRevoked, errors.New("refresh token already redeemed"))
	}

	pair, err := l.tokens.Issue(claims.Principal())
	if err != nil {
		return domain.TokenPair{}, domain.TokenClaims{}, err
	}
	l.metrics.RecordAuth("refresh", "ok")
	return pair, claims, nil
}

// Logout revokes every presented token that is still validly signed and
// unexpired. Invalid, expired and already revoked tokens are skipped; only
// storage failures are returned.
func (l *Lifecycle) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var errs []error
	for _, candidate := range []struct {
		token string
		typ   domain.TokenType
	}{
		{accessToken, domain.TokenTypeAccess},
		{refreshToken, domain.TokenTypeRefresh},
	} {
		if candidate.token == "" {
			continue
		}
		claims, err := l.tokens.Parse(candidate.token, candidate.typ)
		if err != nil {
			continue
		}
		if err := l.revoke(ctx, claims); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		l.metrics.RecordAuth("logout", "store_error")
		return errors.Join(errs...)
	}
	l.metrics.RecordAuth("logout", "ok")
	return nil
}

func (l *Lifecycle) revoke(ctx context.Context, claims domain.TokenClaims) error {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	if _, err := l.revocations.Revoke(ctx, claims.RevocationEntry()); err != nil {
		return domain.Unavailable("revoke "+string(claims.Type)+" token", err)
	}
	return nil
}

// CheckLoginAttempt counts one attempt for sourceKey, or rejects it with the
// remaining lockout when the key is already at the limit.
func (l *Lifecycle) CheckLoginAttempt(ctx context.Context, sourceKey string) error {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	res, err := l.attempts.Attempt(ctx, sourceKey, l.maxAttempts, l.window, l.now())
	if err != nil {
		l.metrics.RecordAuth("login_attempt", "store_error")
		return domain.Unavailable("count login attempt", err)
	}
	if !res.Allowed {
		l.metrics.RecordAuth("login_attempt", domain.AuthRateLimited.String())
		return domain.NewRateLimitedError(ceilSeconds(res.RetryAfter))
	}
	return nil
}

// ResetLoginAttempts clears the counter after a successful login.
func (l *Lifecycle) ResetLoginAttempts(ctx context.Context, sourceKey string) error {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	if err := l.attempts.Reset(ctx, sourceKey); err != nil {
		return domain.Unavailable("reset login attempts", err)
	}
	return nil
}

func (l *Lifecycle) recordFailure(op string, err error) {
	if authErr, ok := domain.AsAuthError(err); ok {
		l.metrics.RecordAuth(op, authErr.Kind.String())
		return
	}
	l.metrics.RecordAuth(op, "error")
}

func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}
