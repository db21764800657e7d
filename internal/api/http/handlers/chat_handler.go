package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tutorlink/session-core/internal/api/dto"
	"github.com/tutorlink/session-core/internal/auth"
	"github.com/tutorlink/session-core/internal/domain"
	"github.com/tutorlink/session-core/internal/realtime"
	apperrors "github.com/tutorlink/session-core/pkg/util/errorutil"
)

// ChatHandler mirrors the realtime chat operations over REST.
type ChatHandler struct {
	router *realtime.Router
}

// NewChatHandler constructs handler.
func NewChatHandler(router *realtime.Router) *ChatHandler {
	return &ChatHandler{router: router}
}

// Peers GET /chat/peers.
func (h *ChatHandler) Peers(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}
	peers, err := h.router.ListReachablePeers(c.UserContext(), *principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": realtime.NewPeerPayloads(peers)})
}

// Messages GET /chat/messages/:peerId.
func (h *ChatHandler) Messages(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}
	msgs, err := h.router.GetMessages(c.UserContext(), principal.ID, c.Params("peerId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": realtime.NewMessagePayloads(msgs)})
}

// Send POST /chat/messages.
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	msg, err := h.router.SendMessage(c.UserContext(), principal.ID, req.RecipientID, req.Content)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": realtime.NewMessagePayload(msg)})
}

// UnreadSummary GET /chat/unread-summary.
func (h *ChatHandler) UnreadSummary(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}
	summary, err := h.router.UnreadSummary(c.UserContext(), principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}
