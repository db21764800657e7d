package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutorlink/session-core/internal/domain"
)

// MemoryUserRepository keeps users in process memory.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	links   map[[2]string]struct{}
	now     func() time.Time
}

// NewMemoryUserRepository returns an empty repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		links:   make(map[[2]string]struct{}),
		now:     time.Now,
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, exists := r.byEmail[email]; exists {
		return domain.ErrEmailTaken
	}
	now := r.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[email] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[strings.ToLower(email)]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryUserRepository) TouchLastActive(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	t := at
	user.LastActive = &t
	user.UpdatedAt = r.now()
	return nil
}

func (r *MemoryUserRepository) ListLinked(_ context.Context, principal domain.Principal) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.User
	for link := range r.links {
		var otherID string
		switch {
		case principal.Role == domain.RoleTeacher && link[0] == principal.ID:
			otherID = link[1]
		case principal.Role == domain.RoleStudent && link[1] == principal.ID:
			otherID = link[0]
		default:
			continue
		}
		if user, ok := r.byID[otherID]; ok {
			result = append(result, *user)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		return a.Email < b.Email
	})
	return result, nil
}

func (r *MemoryUserRepository) Link(_ context.Context, teacherID, studentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[teacherID]; !ok {
		return domain.ErrUserNotFound
	}
	if _, ok := r.byID[studentID]; !ok {
		return domain.ErrUserNotFound
	}
	r.links[[2]string{teacherID, studentID}] = struct{}{}
	return nil
}
