package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/tutorlink/session-core/internal/domain"
	"github.com/tutorlink/session-core/internal/observability"
)

// MaxMessageRunes bounds chat message length.
const MaxMessageRunes = 4000

// Delivery is the outcome of a targeted emit.
type Delivery int

const (
	Dropped Delivery = iota
	Delivered
)

func (d Delivery) String() string {
	if d == Delivered {
		return "delivered"
	}
	return "dropped"
}

// UserStore is the slice of the user repository the router reads.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	TouchLastActive(ctx context.Context, id string, at time.Time) error
	ListLinked(ctx context.Context, principal domain.Principal) ([]domain.User, error)
}

// MessageStore persists chat messages.
type MessageStore interface {
	Create(ctx context.Context, msg *domain.Message) error
	Conversation(ctx context.Context, requesterID, peerID string, readAt time.Time) (domain.Conversation, error)
	UnreadSummary(ctx context.Context, recipientID string) (map[string]int, error)
}

// RouterConfig bounds storage calls made on behalf of connections.
type RouterConfig struct {
	PersistTimeout time.Duration
}

// Router delivers targeted events through the registry and relays chat.
type Router struct {
	registry       Registry
	users          UserStore
	messages       MessageStore
	logger         *zap.Logger
	metrics        *observability.Metrics
	persistTimeout time.Duration
	senders        *keyedMutex
	now            func() time.Time

	// presence orders registry changes with their status broadcasts, so
	// observers see transitions in the order the registry applied them.
	presence sync.Mutex
}

// NewRouter wires the registry to its stores.
func NewRouter(registry Registry, users UserStore, messages MessageStore, cfg RouterConfig, logger *zap.Logger, metrics *observability.Metrics) *Router {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry:       registry,
		users:          users,
		messages:       messages,
		logger:         logger,
		metrics:        metrics,
		persistTimeout: cfg.PersistTimeout,
		senders:        newKeyedMutex(),
		now:            time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// Registry exposes the connection registry.
func (r *Router) Registry() Registry {
	return r.registry
}

// OnConnect makes c the delivery target for its principal and announces it online.
func (r *Router) OnConnect(c *Client) {
	r.presence.Lock()
	defer r.presence.Unlock()

	if prev := r.registry.Register(c); prev != nil {
		r.logger.Info("connection replaced",
			zap.String("principal_id", c.Principal.ID),
			zap.String("previous_session", prev.SessionID),
			zap.String("session_id", c.SessionID))
	}
	r.metrics.SetConnections(r.registry.Len())
	r.broadcastStatus(c, StatusPayload{PrincipalID: c.Principal.ID, Status: StatusOnline})
}

// OnDisconnect removes c if it is still the registered connection. It reports
// whether it did; presence and last-seen are only updated in that case.
func (r *Router) OnDisconnect(c *Client) bool {
	lastSeen, removed := r.unregister(c)
	if !removed {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.persistTimeout)
	defer cancel()
	if err := r.users.TouchLastActive(ctx, c.Principal.ID, lastSeen); err != nil {
		r.logger.Warn("record last seen failed", zap.String("principal_id", c.Principal.ID), zap.Error(err))
	}
	return true
}

func (r *Router) unregister(c *Client) (time.Time, bool) {
	r.presence.Lock()
	defer r.presence.Unlock()

	if !r.registry.Unregister(c) {
		return time.Time{}, false
	}
	r.metrics.SetConnections(r.registry.Len())

	lastSeen := r.now().UTC()
	r.broadcastStatus(c, StatusPayload{PrincipalID: c.Principal.ID, Status: StatusOffline, LastSeen: &lastSeen})
	return lastSeen, true
}

func (r *Router) broadcastStatus(subject *Client, payload StatusPayload) {
	env, err := NewEnvelope(EventUserStatusChange, payload, r.now())
	if err != nil {
		r.logger.Error("encode presence", zap.Error(err))
		return
	}
	for _, c := range r.registry.Snapshot() {
		if c == subject {
			continue
		}
		c.Enqueue(env)
	}
}

// EmitToUser delivers an event to the principal's registered connection.
// Absent principals and full queues drop the event; nothing is retried or stored.
func (r *Router) EmitToUser(principalID, event string, payload any) Delivery {
	c, ok := r.registry.Lookup(principalID)
	if !ok {
		r.metrics.RecordDelivery(event, Dropped.String())
		return Dropped
	}
	env, err := NewEnvelope(event, payload, r.now())
	if err != nil {
		r.logger.Error("encode event", zap.String("event", event), zap.Error(err))
		r.metrics.RecordDelivery(event, Dropped.String())
		return Dropped
	}
	if !c.Enqueue(env) {
		r.logger.Info("send queue full, event dropped",
			zap.String("principal_id", principalID), zap.String("event", event))
		r.metrics.RecordDelivery(event, Dropped.String())
		return Dropped
	}
	r.metrics.RecordDelivery(event, Delivered.String())
	return Delivered
}

// SendMessage persists a message and then delivers it to the recipient and
// echoes it to the sender. Sends from one sender are serialized so their
// persistence order and delivery order agree.
func (r *Router) SendMessage(ctx context.Context, senderID, recipientID, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	switch {
	case strings.TrimSpace(recipientID) == "":
		return domain.Message{}, fmt.Errorf("%w: recipient is required", domain.ErrInvalidMessage)
	case content == "":
		return domain.Message{}, fmt.Errorf("%w: content is empty", domain.ErrInvalidMessage)
	case utf8.RuneCountInString(content) > MaxMessageRunes:
		return domain.Message{}, fmt.Errorf("%w: content exceeds %d characters", domain.ErrInvalidMessage, MaxMessageRunes)
	}

	unlock := r.senders.Lock(senderID)
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()

	if _, err := r.users.GetByID(storeCtx, recipientID); err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:          ulid.Make().String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.messages.Create(storeCtx, &msg); err != nil {
		if !errors.Is(err, domain.ErrPersistenceUnavailable) {
			err = domain.Unavailable("persist message", err)
		}
		return domain.Message{}, err
	}

	payload := NewMessagePayload(msg)
	r.EmitToUser(recipientID, EventMessage, payload)
	if senderID != recipientID {
		r.EmitToUser(senderID, EventMessage, payload)
	}
	return msg, nil
}

// GetMessages returns the conversation with peerID and marks the peer's
// unread messages as read. Messages that became read in this call are
// announced to the peer once.
func (r *Router) GetMessages(ctx context.Context, requesterID, peerID string) ([]domain.Message, error) {
	if strings.TrimSpace(peerID) == "" {
		return nil, fmt.Errorf("%w: peer is required", domain.ErrInvalidMessage)
	}
	storeCtx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()

	conv, err := r.messages.Conversation(storeCtx, requesterID, peerID, r.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(conv.NewlyRead) > 0 {
		r.EmitToUser(peerID, EventMessagesRead, MessagesReadPayload{
			ReaderID:   requesterID,
			MessageIDs: conv.NewlyRead,
			ReadAt:     conv.ReadAt,
		})
	}
	return conv.Messages, nil
}

// ListReachablePeers lists who the principal may message, with presence.
func (r *Router) ListReachablePeers(ctx context.Context, principal domain.Principal) ([]domain.Peer, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()

	users, err := r.users.ListLinked(storeCtx, principal)
	if err != nil {
		return nil, err
	}
	peers := make([]domain.Peer, 0, len(users))
	for _, u := range users {
		peers = append(peers, domain.Peer{
			ID:       u.ID,
			Name:     DisplayName(u),
			Role:     u.Role,
			IsOnline: r.registry.IsOnline(u.ID),
			LastSeen: u.LastActive,
		})
	}
	return peers, nil
}

// UnreadSummary counts unread messages addressed to principalID, by sender.
func (r *Router) UnreadSummary(ctx context.Context, principalID string) (map[string]int, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()
	return r.messages.UnreadSummary(storeCtx, principalID)
}

// DisplayName is the trimmed full name, or the email when no name is set.
func DisplayName(u domain.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Email
	}
	return name
}
