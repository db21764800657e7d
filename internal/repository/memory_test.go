package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tutorlink/session-core/internal/domain"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryRevocationConditionalInsert(t *testing.T) {
	store := NewMemoryRevocationStore()
	ctx := context.Background()

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := store.Revoke(ctx, domain.RevocationEntry{JTI: "jti-1", ExpiresAt: baseTime.Add(time.Hour)})
			if err != nil {
				t.Errorf("revoke: %v", err)
				return
			}
			if inserted {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one insert to win, got %d", wins)
	}
	revoked, _ := store.IsRevoked(ctx, "jti-1")
	if !revoked {
		t.Fatalf("expected jti-1 revoked")
	}
}

func TestMemoryRevocationSweepKeepsLiveEntries(t *testing.T) {
	store := NewMemoryRevocationStore()
	ctx := context.Background()
	_, _ = store.Revoke(ctx, domain.RevocationEntry{JTI: "expired-1", ExpiresAt: baseTime.Add(-time.Minute)})
	_, _ = store.Revoke(ctx, domain.RevocationEntry{JTI: "expired-2", ExpiresAt: baseTime})
	_, _ = store.Revoke(ctx, domain.RevocationEntry{JTI: "live", ExpiresAt: baseTime.Add(time.Second)})

	removed, err := store.Sweep(ctx, baseTime, 1)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected batch of 1, got %d", removed)
	}
	removed, _ = store.Sweep(ctx, baseTime, 10)
	if removed != 1 {
		t.Fatalf("expected remaining expired entry removed, got %d", removed)
	}
	if revoked, _ := store.IsRevoked(ctx, "live"); !revoked {
		t.Fatalf("sweep removed an entry that has not expired")
	}
	if store.Len() != 1 {
		t.Fatalf("expected one entry left, got %d", store.Len())
	}
}

func TestMemoryAttemptWindow(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()
	const key = "203.0.113.9"
	window := 15 * time.Minute

	for i := 1; i <= 5; i++ {
		res, err := store.Attempt(ctx, key, 5, window, baseTime.Add(time.Duration(i)*time.Minute))
		if err != nil || !res.Allowed || res.Count != i {
			t.Fatalf("attempt %d: %+v err=%v", i, res, err)
		}
	}

	res, _ := store.Attempt(ctx, key, 5, window, baseTime.Add(10*time.Minute))
	if res.Allowed {
		t.Fatalf("sixth attempt should be rejected")
	}
	// Window started at the first attempt (base+1m), so it ends at base+16m.
	if res.RetryAfter != 6*time.Minute {
		t.Fatalf("expected 6m retry, got %s", res.RetryAfter)
	}
	if res.Count != 5 {
		t.Fatalf("rejected attempt must not be counted, got %d", res.Count)
	}

	res, _ = store.Attempt(ctx, key, 5, window, baseTime.Add(16*time.Minute))
	if !res.Allowed || res.Count != 1 {
		t.Fatalf("expected fresh window, got %+v", res)
	}
}

func TestMemoryAttemptResetAndSweep(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()
	window := time.Minute

	_, _ = store.Attempt(ctx, "a", 5, window, baseTime)
	_, _ = store.Attempt(ctx, "b", 5, window, baseTime.Add(30*time.Second))
	if err := store.Reset(ctx, "a"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	res, _ := store.Attempt(ctx, "a", 5, window, baseTime.Add(time.Second))
	if res.Count != 1 {
		t.Fatalf("expected counter reset, got %d", res.Count)
	}

	removed, _ := store.Sweep(ctx, baseTime.Add(time.Minute+time.Second))
	if removed != 1 || store.Len() != 1 {
		t.Fatalf("expected only key a swept, removed=%d len=%d", removed, store.Len())
	}
}

func TestMemoryAttemptConcurrentNoLostUpdates(t *testing.T) {
	store := NewMemoryAttemptStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := store.Attempt(ctx, "k", 5, time.Hour, baseTime)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 5 {
		t.Fatalf("expected exactly 5 allowed attempts, got %d", allowed)
	}
}

func TestMemoryUsersAndLinks(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	teacher := &domain.User{Email: "teacher@example.com", Role: domain.RoleTeacher, FirstName: "Tess"}
	student := &domain.User{Email: "student@example.com", Role: domain.RoleStudent, FirstName: "Sam"}
	if err := repo.Create(ctx, teacher); err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	if err := repo.Create(ctx, student); err != nil {
		t.Fatalf("create student: %v", err)
	}
	if err := repo.Create(ctx, &domain.User{Email: "TEACHER@example.com"}); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if err := repo.Link(ctx, teacher.ID, student.ID); err != nil {
		t.Fatalf("link: %v", err)
	}

	peers, _ := repo.ListLinked(ctx, teacher.Principal())
	if len(peers) != 1 || peers[0].ID != student.ID {
		t.Fatalf("teacher should see student, got %+v", peers)
	}
	peers, _ = repo.ListLinked(ctx, student.Principal())
	if len(peers) != 1 || peers[0].ID != teacher.ID {
		t.Fatalf("student should see teacher, got %+v", peers)
	}

	if err := repo.TouchLastActive(ctx, student.ID, baseTime); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, _ := repo.GetByEmail(ctx, "Student@Example.com")
	if got.LastActive == nil || !got.LastActive.Equal(baseTime) {
		t.Fatalf("expected last active recorded, got %v", got.LastActive)
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryConversationMarksReadOnce(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()

	msgs := []domain.Message{
		{ID: "01B", SenderID: "u1", RecipientID: "u2", Content: "second", CreatedAt: baseTime},
		{ID: "01A", SenderID: "u1", RecipientID: "u2", Content: "first", CreatedAt: baseTime},
		{ID: "01C", SenderID: "u2", RecipientID: "u1", Content: "reply", CreatedAt: baseTime.Add(time.Second)},
		{ID: "01D", SenderID: "u3", RecipientID: "u2", Content: "other", CreatedAt: baseTime},
	}
	for i := range msgs {
		if err := repo.Create(ctx, &msgs[i]); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	summary, _ := repo.UnreadSummary(ctx, "u2")
	if summary["u1"] != 2 || summary["u3"] != 1 {
		t.Fatalf("unexpected unread summary %v", summary)
	}

	readAt := baseTime.Add(time.Minute)
	conv, err := repo.Conversation(ctx, "u2", "u1", readAt)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if len(conv.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].ID != "01A" || conv.Messages[1].ID != "01B" || conv.Messages[2].ID != "01C" {
		t.Fatalf("unexpected order: %s %s %s", conv.Messages[0].ID, conv.Messages[1].ID, conv.Messages[2].ID)
	}
	if len(conv.NewlyRead) != 2 {
		t.Fatalf("expected 2 newly read, got %v", conv.NewlyRead)
	}
	if !conv.Messages[0].Read || conv.Messages[0].ReadAt == nil || !conv.Messages[0].ReadAt.Equal(readAt) {
		t.Fatalf("expected message marked read at %s", readAt)
	}
	if conv.Messages[2].Read {
		t.Fatalf("requester's own message must stay unread")
	}

	again, _ := repo.Conversation(ctx, "u2", "u1", readAt.Add(time.Minute))
	if len(again.Messages) != 3 || len(again.NewlyRead) != 0 {
		t.Fatalf("second fetch should not re-mark, got %d newly read", len(again.NewlyRead))
	}
	if !again.Messages[0].ReadAt.Equal(readAt) {
		t.Fatalf("readAt must not move on a second fetch")
	}
}
