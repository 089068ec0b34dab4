package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// Invites cap how far an expiry can be pushed out.
const maxInviteAge = 30 * 24 * time.Hour

// InviteHandler serves server invite endpoints. Join failures are
// deliberately uniform: unknown, expired and exhausted codes and banned
// callers all read as 404, so codes cannot be probed.
type InviteHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewInviteHandler creates a new invite handler.
func NewInviteHandler(st store.Store, logger zerolog.Logger) *InviteHandler {
	return &InviteHandler{store: st, log: logger}
}

// Create handles POST /v1/servers/:id/invites. A maxUses of zero means
// unlimited; a zero expiresInSeconds never expires.
func (h *InviteHandler) Create(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapInviteError(c, err)
	}

	var body struct {
		MaxUses          int `json:"maxUses"`
		ExpiresInSeconds int `json:"expiresInSeconds"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.MaxUses < 0 {
		return httputil.Error(c, fiber.StatusBadRequest, "maxUses must not be negative")
	}
	if body.ExpiresInSeconds < 0 || time.Duration(body.ExpiresInSeconds)*time.Second > maxInviteAge {
		return httputil.Error(c, fiber.StatusBadRequest, "expiresInSeconds is out of range")
	}

	params := store.CreateInviteParams{
		ServerID:  serverID,
		CreatedBy: userID,
		MaxUses:   body.MaxUses,
	}
	if body.ExpiresInSeconds > 0 {
		at := time.Now().Add(time.Duration(body.ExpiresInSeconds) * time.Second)
		params.ExpiresAt = &at
	}

	inv, err := h.store.CreateInvite(c, params)
	if err != nil {
		return h.mapInviteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

// List handles GET /v1/servers/:id/invites.
func (h *InviteHandler) List(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapInviteError(c, err)
	}

	invites, err := h.store.Invites(c, serverID)
	if err != nil {
		return h.mapInviteError(c, err)
	}
	return c.JSON(invites)
}

// Delete handles DELETE /v1/servers/:id/invites/:code.
func (h *InviteHandler) Delete(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapInviteError(c, err)
	}

	if err := h.store.DeleteInvite(c, serverID, c.Params("code")); err != nil {
		return h.mapInviteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Join handles POST /v1/invites/:code/join. The store validates expiry,
// usage and bans and admits the caller atomically; rejoining an already
// joined server succeeds without consuming a use.
func (h *InviteHandler) Join(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	srv, err := h.store.JoinByInvite(c, c.Params("code"), userID)
	if err != nil {
		return h.mapInviteError(c, err)
	}
	return c.JSON(srv)
}

// mapInviteError converts invite-layer errors to appropriate HTTP responses.
func (h *InviteHandler) mapInviteError(c fiber.Ctx, err error) error {
	switch {
	case isDenial(err):
		return err
	case errors.Is(err, store.ErrInviteInvalid):
		return httputil.Error(c, fiber.StatusNotFound, "Invite not found")
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Invite not found")
	default:
		h.log.Error().Err(err).Str("handler", "invite").Msg("unhandled invite store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
