package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// MarkerHandler serves read markers for channels and direct threads. A
// conversation the caller never marked reads back as the empty sentinel
// rather than 404, so clients need no special first-visit handling.
type MarkerHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewMarkerHandler creates a new read-marker handler.
func NewMarkerHandler(st store.Store, logger zerolog.Logger) *MarkerHandler {
	return &MarkerHandler{store: st, log: logger}
}

// GetChannel handles GET /v1/channels/:id/read-marker.
func (h *MarkerHandler) GetChannel(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	if _, err := channelCapability(c, h.store, channelID, userID, permission.ReadMessages); err != nil {
		return h.mapMarkerError(c, err)
	}
	return h.get(c, channelID, userID)
}

// SetChannel handles PUT /v1/channels/:id/read-marker.
func (h *MarkerHandler) SetChannel(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	if _, err := channelCapability(c, h.store, channelID, userID, permission.ReadMessages); err != nil {
		return h.mapMarkerError(c, err)
	}
	return h.set(c, channelID, userID)
}

// GetThread handles GET /v1/direct-threads/:id/read-marker.
func (h *MarkerHandler) GetThread(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	threadID := c.Params("id")

	if _, err := threadParticipant(c, h.store, threadID, userID); err != nil {
		return h.mapMarkerError(c, err)
	}
	return h.get(c, threadID, userID)
}

// SetThread handles PUT /v1/direct-threads/:id/read-marker.
func (h *MarkerHandler) SetThread(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	threadID := c.Params("id")

	if _, err := threadParticipant(c, h.store, threadID, userID); err != nil {
		return h.mapMarkerError(c, err)
	}
	return h.set(c, threadID, userID)
}

func (h *MarkerHandler) get(c fiber.Ctx, conversationID, userID string) error {
	marker, err := h.store.ReadMarker(c, conversationID, userID)
	if err != nil {
		return h.mapMarkerError(c, err)
	}
	return c.JSON(marker)
}

// set records the caller's last-read message. The store verifies that the
// message, when given, belongs to the conversation.
func (h *MarkerHandler) set(c fiber.Ctx, conversationID, userID string) error {
	var body struct {
		LastReadMessageID string `json:"lastReadMessageId"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	marker, err := h.store.SetReadMarker(c, conversationID, userID, strings.TrimSpace(body.LastReadMessageID))
	if err != nil {
		return h.mapMarkerError(c, err)
	}
	return c.JSON(marker)
}

// mapMarkerError converts marker-layer errors to appropriate HTTP responses.
func (h *MarkerHandler) mapMarkerError(c fiber.Ctx, err error) error {
	switch {
	case isDenial(err):
		return err
	case errors.Is(err, store.ErrMarkerMessage):
		return httputil.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Conversation not found")
	default:
		h.log.Error().Err(err).Str("handler", "marker").Msg("unhandled marker store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
