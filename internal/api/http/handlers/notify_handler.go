package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/tutorlink/session-core/internal/api/dto"
	"github.com/tutorlink/session-core/internal/auth"
	"github.com/tutorlink/session-core/internal/events"
	"github.com/tutorlink/session-core/internal/realtime"
	"github.com/tutorlink/session-core/internal/service"
	apperrors "github.com/tutorlink/session-core/pkg/util/errorutil"
)

// NotifyHandler accepts collaborator events from other services.
type NotifyHandler struct {
	notifications *service.NotificationService
	registry      realtime.Registry
	serviceToken  string
}

// NewNotifyHandler constructs handler. An empty token disables the endpoint.
func NewNotifyHandler(notifications *service.NotificationService, registry realtime.Registry, serviceToken string) *NotifyHandler {
	return &NotifyHandler{notifications: notifications, registry: registry, serviceToken: serviceToken}
}

// Enabled reports whether a service token is configured.
func (h *NotifyHandler) Enabled() bool {
	return h.serviceToken != ""
}

// Notify POST /internal/notify.
func (h *NotifyHandler) Notify(c *fiber.Ctx) error {
	token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.serviceToken)) != 1 {
		return apperrors.NewUnauthorized("invalid service token")
	}

	var req dto.NotifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	event := events.Event{
		ID:          uuid.NewString(),
		Type:        events.EventType(req.Type),
		RecipientID: req.RecipientID,
		ActorID:     req.ActorID,
		Payload:     req.Payload,
	}
	online := h.registry.IsOnline(req.RecipientID)
	if err := h.notifications.Publish(c.UserContext(), event); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.NotifyResponse{ID: event.ID, RecipientOnline: online}})
}
