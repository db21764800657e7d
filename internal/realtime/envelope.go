package realtime

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tutorlink/session-core/internal/domain"
)

// Inbound events.
const (
	EventGetUsers    = "getUsers"
	EventGetMessages = "getMessages"
	EventSendMessage = "sendMessage"
)

// Outbound events.
const (
	EventUsers            = "users"
	EventMessages         = "messages"
	EventMessage          = "message"
	EventMessagesRead     = "messages_read"
	EventUserStatusChange = "user_status_change"
	EventError            = "error"
)

// Presence values carried by user_status_change.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	TS    time.Time       `json:"ts"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a frame stamped with a fresh id.
func NewEnvelope(event string, payload any, now time.Time) (Envelope, error) {
	env := Envelope{Event: event, ID: ulid.Make().String(), TS: now.UTC()}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = data
	return env, nil
}

type GetMessagesRequest struct {
	PeerID string `json:"peerId"`
}

type SendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type StatusPayload struct {
	PrincipalID string     `json:"principalId"`
	Status      string     `json:"status"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
}

type MessagesReadPayload struct {
	ReaderID   string    `json:"readerId"`
	MessageIDs []string  `json:"messageIds"`
	ReadAt     time.Time `json:"readAt"`
}

// MessagePayload is the client-facing shape of a persisted message.
type MessagePayload struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"senderId"`
	RecipientID string     `json:"recipientId"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"createdAt"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

// PeerPayload is the client-facing shape of a reachable peer.
type PeerPayload struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Role     string     `json:"role"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

func NewMessagePayload(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		Read:        m.Read,
		ReadAt:      m.ReadAt,
	}
}

func NewMessagePayloads(msgs []domain.Message) []MessagePayload {
	out := make([]MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessagePayload(m))
	}
	return out
}

func NewPeerPayloads(peers []domain.Peer) []PeerPayload {
	out := make([]PeerPayload, 0, len(peers))
	for _, p := range peers {
		out = append(out, PeerPayload{
			ID:       p.ID,
			Name:     p.Name,
			Role:     strings.ToLower(string(p.Role)),
			IsOnline: p.IsOnline,
			LastSeen: p.LastSeen,
		})
	}
	return out
}
