package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// PushHandler manages the caller's Web Push subscriptions.
type PushHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewPushHandler creates a new push subscription handler.
func NewPushHandler(st store.Store, logger zerolog.Logger) *PushHandler {
	return &PushHandler{store: st, log: logger}
}

// Create handles POST /v1/notifications/push-subscriptions. Registration is
// idempotent per endpoint: re-registering the same endpoint refreshes its
// keys under the existing id.
func (h *PushHandler) Create(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	var body struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	endpoint := strings.TrimSpace(body.Endpoint)
	if endpoint == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "Endpoint is required")
	}
	if body.Keys.P256dh == "" || body.Keys.Auth == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "Subscription keys are required")
	}

	sub, err := h.store.CreatePushSubscription(c, store.CreatePushParams{
		UserID:    userID,
		Endpoint:  endpoint,
		P256dh:    body.Keys.P256dh,
		Auth:      body.Keys.Auth,
		UserAgent: string(c.Request().Header.UserAgent()),
	})
	if err != nil {
		return h.mapPushError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// List handles GET /v1/notifications/push-subscriptions.
func (h *PushHandler) List(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	subs, err := h.store.PushSubscriptions(c, userID)
	if err != nil {
		return h.mapPushError(c, err)
	}
	return c.JSON(subs)
}

// Delete handles DELETE /v1/notifications/push-subscriptions/:id. Deletion
// is scoped to the caller and idempotent: removing an absent subscription,
// or one owned by someone else, still 204s without touching it.
func (h *PushHandler) Delete(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	if err := h.store.DeletePushSubscription(c, userID, c.Params("id")); err != nil {
		return h.mapPushError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// mapPushError converts push-layer errors to appropriate HTTP responses.
func (h *PushHandler) mapPushError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Subscription not found")
	default:
		h.log.Error().Err(err).Str("handler", "push").Msg("unhandled push store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
