package dto

// SendMessageRequest payload for POST /chat/messages.
type SendMessageRequest struct {
	RecipientID string `json:"recipientId" validate:"required"`
	Content     string `json:"content" validate:"required"`
}

// NotifyRequest payload for POST /internal/notify.
type NotifyRequest struct {
	Type        string `json:"type" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required"`
	ActorID     string `json:"actorId"`
	Payload     any    `json:"payload"`
}

// NotifyResponse reports whether the recipient had a live connection when
// the event was accepted.
type NotifyResponse struct {
	ID              string `json:"id"`
	RecipientOnline bool   `json:"recipientOnline"`
}
