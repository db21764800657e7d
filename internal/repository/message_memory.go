package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tutorlink/session-core/internal/domain"
)

// MemoryMessageRepository keeps messages in process memory.
type MemoryMessageRepository struct {
	mu       sync.Mutex
	messages []*domain.Message
}

// NewMemoryMessageRepository returns an empty repository.
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{}
}

func (r *MemoryMessageRepository) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *msg
	r.messages = append(r.messages, &stored)
	return nil
}

func (r *MemoryMessageRepository) Conversation(_ context.Context, requesterID, peerID string, readAt time.Time) (domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv := domain.Conversation{ReadAt: readAt}
	for _, msg := range r.messages {
		inPair := (msg.SenderID == requesterID && msg.RecipientID == peerID) ||
			(msg.SenderID == peerID && msg.RecipientID == requesterID)
		if !inPair {
			continue
		}
		if msg.RecipientID == requesterID && !msg.Read {
			at := readAt
			msg.Read = true
			msg.ReadAt = &at
			conv.NewlyRead = append(conv.NewlyRead, msg.ID)
		}
		out := *msg
		if msg.ReadAt != nil {
			at := *msg.ReadAt
			out.ReadAt = &at
		}
		conv.Messages = append(conv.Messages, out)
	}
	sort.SliceStable(conv.Messages, func(i, j int) bool {
		a, b := conv.Messages[i], conv.Messages[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return conv, nil
}

func (r *MemoryMessageRepository) UnreadSummary(_ context.Context, recipientID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := make(map[string]int)
	for _, msg := range r.messages {
		if msg.RecipientID == recipientID && !msg.Read {
			summary[msg.SenderID]++
		}
	}
	return summary, nil
}
