package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/notify"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// webhookPolicy strips all markup from webhook payloads. Execution is the
// only write path that accepts input from outside an authenticated session,
// so bodies are sanitised before they enter the message pipeline.
var webhookPolicy = bluemonday.StrictPolicy()

// WebhookHandler manages channel webhooks and their execution. Execution is
// token-authenticated: unknown ids and wrong tokens read identically as 404.
type WebhookHandler struct {
	store  store.Store
	hub    *gateway.Hub
	notify *notify.Enqueuer
	log    zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler. enqueuer may be nil when
// no notification queue is configured.
func NewWebhookHandler(st store.Store, hub *gateway.Hub, enqueuer *notify.Enqueuer, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{store: st, hub: hub, notify: enqueuer, log: logger}
}

// Create handles POST /v1/channels/:id/webhooks. The response carries the
// plaintext token exactly once; afterwards only its hash exists.
func (h *WebhookHandler) Create(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "Webhook name is required")
	}

	if _, err := channelCapability(c, h.store, channelID, userID, permission.ManageChannels); err != nil {
		return h.mapWebhookError(c, err)
	}

	wh, err := h.store.CreateWebhook(c, channelID, name, userID)
	if err != nil {
		return h.mapWebhookError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(wh)
}

// List handles GET /v1/channels/:id/webhooks. Tokens are never listed.
func (h *WebhookHandler) List(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	if _, err := channelCapability(c, h.store, channelID, userID, permission.ManageChannels); err != nil {
		return h.mapWebhookError(c, err)
	}

	webhooks, err := h.store.Webhooks(c, channelID)
	if err != nil {
		return h.mapWebhookError(c, err)
	}
	return c.JSON(webhooks)
}

// Delete handles DELETE /v1/channels/:id/webhooks/:webhookId.
func (h *WebhookHandler) Delete(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	if _, err := channelCapability(c, h.store, channelID, userID, permission.ManageChannels); err != nil {
		return h.mapWebhookError(c, err)
	}

	if err := h.store.DeleteWebhook(c, channelID, c.Params("webhookId")); err != nil {
		return h.mapWebhookError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Execute handles POST /v1/webhooks/:id/:token. No session is involved: the
// token in the path is the whole credential. The sanitised body becomes a
// normal message authored by the webhook, with the usual fan-out and
// notifications.
func (h *WebhookHandler) Execute(c fiber.Ctx) error {
	wh, err := h.store.WebhookByToken(c, c.Params("id"), c.Params("token"))
	if err != nil {
		return h.mapWebhookError(c, err)
	}

	var body struct {
		Body string `json:"body"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	text, err := normalizeMessageBody(webhookPolicy.Sanitize(body.Body))
	if err != nil {
		return h.mapWebhookError(c, err)
	}

	msg, err := h.store.CreateMessage(c, store.CreateMessageParams{
		ChannelID: wh.ChannelID,
		AuthorID:  wh.ID,
		Body:      text,
	})
	if err != nil {
		return h.mapWebhookError(c, err)
	}

	h.hub.Publish(msg.ConversationID, gateway.EventMessageCreated, msg)
	h.notify.MessageCreated(msg)
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// mapWebhookError converts webhook-layer errors to appropriate HTTP
// responses.
func (h *WebhookHandler) mapWebhookError(c fiber.Ctx, err error) error {
	switch {
	case isDenial(err):
		return err
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Webhook not found")
	default:
		h.log.Error().Err(err).Str("handler", "webhook").Msg("unhandled webhook store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
