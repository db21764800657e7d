package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tutorlink/session-core/internal/domain"
	"github.com/tutorlink/session-core/internal/repository"
)

type failingRevocations struct {
	lookupErr error
	revokeErr error
	block     bool
}

func (f *failingRevocations) Revoke(ctx context.Context, _ domain.RevocationEntry) (bool, error) {
	if f.revokeErr != nil {
		return false, f.revokeErr
	}
	return true, nil
}

func (f *failingRevocations) IsRevoked(ctx context.Context, _ string) (bool, error) {
	if f.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return false, f.lookupErr
}

func (f *failingRevocations) Sweep(context.Context, time.Time, int) (int, error) { return 0, nil }

func newTestLifecycle(t *testing.T, revocations RevocationStore) *Lifecycle {
	t.Helper()
	if revocations == nil {
		revocations = repository.NewMemoryRevocationStore()
	}
	return NewLifecycle(newTestTokenManager(time.Now), revocations, repository.NewMemoryAttemptStore(),
		LifecycleConfig{StoreTimeout: 50 * time.Millisecond, MaxLoginAttempts: 5, LoginWindow: 15 * time.Minute}, nil, nil)
}

var testPrincipal = domain.Principal{ID: "user-1", Role: domain.RoleTeacher}

func TestVerifyAfterIssue(t *testing.T) {
	lc := newTestLifecycle(t, nil)
	pair, err := lc.Issue(testPrincipal)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := lc.Verify(context.Background(), pair.AccessToken, domain.TokenTypeAccess)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.PrincipalID != testPrincipal.ID {
		t.Fatalf("expected principal %s, got %s", testPrincipal.ID, claims.PrincipalID)
	}
}

func TestRefreshRotatesAndRevokesOldToken(t *testing.T) {
	lc := newTestLifecycle(t, nil)
	ctx := context.Background()
	pair, _ := lc.Issue(testPrincipal)

	next, claims, err := lc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if claims.PrincipalID != testPrincipal.ID {
		t.Fatalf("unexpected principal %s", claims.PrincipalID)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatalf("expected a rotated refresh token")
	}
	if _, err := lc.Verify(ctx, pair.RefreshToken, domain.TokenTypeRefresh); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("old refresh token should be revoked, got %v", err)
	}
	if _, _, err := lc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("second redemption should be revoked, got %v", err)
	}
	if _, err := lc.Verify(ctx, next.AccessToken, domain.TokenTypeAccess); err != nil {
		t.Fatalf("new access token should verify: %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	lc := newTestLifecycle(t, nil)
	pair, _ := lc.Issue(testPrincipal)

	const racers = 20
	var wg sync.WaitGroup
	results := make(chan error, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := lc.Refresh(context.Background(), pair.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrTokenRevoked):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful refresh, got %d", wins)
	}
}

func TestLogoutRevokesBothTokensIdempotently(t *testing.T) {
	lc := newTestLifecycle(t, nil)
	ctx := context.Background()
	pair, _ := lc.Issue(testPrincipal)

	if err := lc.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := lc.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("second logout should be a no-op: %v", err)
	}
	if err := lc.Logout(ctx, "garbage", ""); err != nil {
		t.Fatalf("invalid tokens are skipped: %v", err)
	}
	if _, err := lc.Verify(ctx, pair.AccessToken, domain.TokenTypeAccess); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("access token should be revoked, got %v", err)
	}
	if _, err := lc.Verify(ctx, pair.RefreshToken, domain.TokenTypeRefresh); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("refresh token should be revoked, got %v", err)
	}
}

func TestVerifyFailsClosed(t *testing.T) {
	cases := map[string]*failingRevocations{
		"store error": {lookupErr: errors.New("connection refused")},
		"timeout":     {block: true},
	}
	for name, store := range cases {
		t.Run(name, func(t *testing.T) {
			lc := newTestLifecycle(t, store)
			pair, _ := lc.Issue(testPrincipal)
			_, err := lc.Verify(context.Background(), pair.AccessToken, domain.TokenTypeAccess)
			if !errors.Is(err, domain.ErrTokenRevoked) {
				t.Fatalf("expected Revoked, got %v", err)
			}
		})
	}
}

func TestRefreshStoreFailureIssuesNothing(t *testing.T) {
	lc := newTestLifecycle(t, &failingRevocations{revokeErr: errors.New("disk full")})
	pair, _ := lc.Issue(testPrincipal)

	next, _, err := lc.Refresh(context.Background(), pair.RefreshToken)
	if !errors.Is(err, domain.ErrPersistenceUnavailable) {
		t.Fatalf("expected PersistenceUnavailable, got %v", err)
	}
	if next.AccessToken != "" || next.RefreshToken != "" {
		t.Fatalf("no pair may be issued when the revocation insert fails")
	}
}

func TestCheckLoginAttemptLockout(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	lc := newTestLifecycle(t, nil).WithClock(func() time.Time { return current })
	ctx := context.Background()
	const ip = "203.0.113.9"

	for i := 0; i < 5; i++ {
		if err := lc.CheckLoginAttempt(ctx, ip); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	current = current.Add(90*time.Second + 300*time.Millisecond)

	err := lc.CheckLoginAttempt(ctx, ip)
	authErr, ok := domain.AsAuthError(err)
	if !ok || authErr.Kind != domain.AuthRateLimited {
		t.Fatalf("expected RateLimited, got %v", err)
	}
	// 15m - 1m30.3s = 13m29.7s, rounded up.
	if authErr.RetryAfter != 13*time.Minute+30*time.Second {
		t.Fatalf("unexpected retry after %s", authErr.RetryAfter)
	}

	if err := lc.CheckLoginAttempt(ctx, "198.51.100.1"); err != nil {
		t.Fatalf("other sources must not be affected: %v", err)
	}

	current = current.Add(15 * time.Minute)
	if err := lc.CheckLoginAttempt(ctx, ip); err != nil {
		t.Fatalf("window elapsed, expected allow: %v", err)
	}
}

func TestResetLoginAttempts(t *testing.T) {
	lc := newTestLifecycle(t, nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_ = lc.CheckLoginAttempt(ctx, "ip")
	}
	if err := lc.ResetLoginAttempts(ctx, "ip"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := lc.CheckLoginAttempt(ctx, "ip"); err != nil {
			t.Fatalf("attempt %d after reset: %v", i+1, err)
		}
	}
}
