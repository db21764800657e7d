package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorlink/session-core/internal/events"
	"github.com/tutorlink/session-core/internal/realtime"
	apperrors "github.com/tutorlink/session-core/pkg/util/errorutil"
)

// Emitter delivers one event to a principal's live connection.
type Emitter interface {
	EmitToUser(principalID, event string, payload any) realtime.Delivery
}

// NotificationService forwards collaborator events to connected principals.
type NotificationService struct {
	dispatcher events.Dispatcher
	emitter    Emitter
	logger     *zap.Logger
	now        func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, emitter Emitter, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		emitter:    emitter,
		logger:     logger,
		now:        time.Now,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, t := range events.KnownTypes {
		n.dispatcher.Subscribe(t, n.forward)
	}
}

// Publish validates and stamps an event before handing it to the dispatcher.
func (n *NotificationService) Publish(ctx context.Context, event events.Event) error {
	if !event.Type.Valid() {
		return apperrors.NewValidationError("unknown event type", map[string]any{"type": event.Type})
	}
	if strings.TrimSpace(event.RecipientID) == "" {
		return apperrors.NewValidationError("recipient is required", nil)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = n.now().UTC()
	}
	if err := n.dispatcher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// forward never fails: an offline recipient simply misses the event.
func (n *NotificationService) forward(_ context.Context, event events.Event) error {
	outcome := n.emitter.EmitToUser(event.RecipientID, string(event.Type), event)
	n.logger.Debug("notification forwarded",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("recipient_id", event.RecipientID),
		zap.String("outcome", outcome.String()))
	return nil
}
