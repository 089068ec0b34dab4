package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/presence"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// Presence bulk lookups are capped so one request cannot fan out to an
// unbounded id list.
const maxPresenceBulk = 100

// PresenceHandler serves presence heartbeats and lookups. Writes go through
// the tracker so status changes fan out to friends; reads hit the store
// directly.
type PresenceHandler struct {
	store   store.Store
	tracker *presence.Tracker
	log     zerolog.Logger
}

// NewPresenceHandler creates a new presence handler.
func NewPresenceHandler(st store.Store, tracker *presence.Tracker, logger zerolog.Logger) *PresenceHandler {
	return &PresenceHandler{store: st, tracker: tracker, log: logger}
}

// Set handles PUT /v1/presence. Clients call this as a heartbeat; the
// tracker refreshes the record's expiry and broadcasts only real changes.
func (h *PresenceHandler) Set(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	var body struct {
		Status model.PresenceStatus `json:"status"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if !model.ValidPresenceStatus(body.Status) {
		return httputil.Error(c, fiber.StatusBadRequest, "Status must be one of online, idle, dnd, offline")
	}

	p, err := h.tracker.Set(c, userID, body.Status)
	if err != nil {
		return h.mapPresenceError(c, err)
	}
	return c.JSON(p)
}

// Me handles GET /v1/presence/me.
func (h *PresenceHandler) Me(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	p, err := h.store.PresenceByUser(c, userID)
	if err != nil {
		return h.mapPresenceError(c, err)
	}
	return c.JSON(p)
}

// Get handles GET /v1/presence/:id. A user who never heartbeated reads as
// offline; only a nonexistent user 404s.
func (h *PresenceHandler) Get(c fiber.Ctx) error {
	p, err := h.store.PresenceByUser(c, c.Params("id"))
	if err != nil {
		return h.mapPresenceError(c, err)
	}
	return c.JSON(p)
}

// Bulk handles POST /v1/presence/bulk, resolving presence for up to
// maxPresenceBulk users in one round trip.
func (h *PresenceHandler) Bulk(c fiber.Ctx) error {
	var body struct {
		UserIDs []string `json:"userIds"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if len(body.UserIDs) == 0 {
		return c.JSON([]model.Presence{})
	}
	if len(body.UserIDs) > maxPresenceBulk {
		return httputil.Error(c, fiber.StatusBadRequest, "Too many user ids requested")
	}

	presences, err := h.store.PresenceBulk(c, body.UserIDs)
	if err != nil {
		return h.mapPresenceError(c, err)
	}
	return c.JSON(presences)
}

// mapPresenceError converts presence-layer errors to appropriate HTTP
// responses.
func (h *PresenceHandler) mapPresenceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "User not found")
	default:
		h.log.Error().Err(err).Str("handler", "presence").Msg("unhandled presence store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
