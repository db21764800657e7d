package domain

import "time"

// Message is a persisted chat message between two principals.
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Content     string
	CreatedAt   time.Time
	Read        bool
	ReadAt      *time.Time
}

// Conversation is one page of messages between a requester and a peer,
// plus the ids that transitioned to read while it was fetched.
type Conversation struct {
	Messages  []Message
	NewlyRead []string
	ReadAt    time.Time
}
