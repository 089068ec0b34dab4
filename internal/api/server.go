package api

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// ServerHandler serves server lifecycle and membership endpoints.
type ServerHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewServerHandler creates a new server handler.
func NewServerHandler(st store.Store, logger zerolog.Logger) *ServerHandler {
	return &ServerHandler{store: st, log: logger}
}

// Create handles POST /v1/servers. The store seeds the @everyone and Owner
// roles and the owner's membership in the same transaction.
func (h *ServerHandler) Create(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	name := strings.TrimSpace(body.Name)
	if utf8.RuneCountInString(name) < 2 {
		return httputil.Error(c, fiber.StatusBadRequest, "Server name must be at least 2 characters")
	}

	srv, err := h.store.CreateServer(c, userID, name)
	if err != nil {
		return h.mapServerError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(srv)
}

// List handles GET /v1/servers, returning the servers the caller belongs
// to.
func (h *ServerHandler) List(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	servers, err := h.store.ServersForUser(c, userID)
	if err != nil {
		return h.mapServerError(c, err)
	}
	return c.JSON(servers)
}

// Delete handles DELETE /v1/servers/:id. Owner only; the store cascades
// through channels, messages, roles, invites, bans and audit entries.
func (h *ServerHandler) Delete(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	pc, err := serverMembership(c, h.store, serverID, userID)
	if err != nil {
		return h.mapServerError(c, err)
	}
	if pc.OwnerID != userID {
		return httputil.Error(c, fiber.StatusForbidden, "Only the server owner can delete it")
	}

	if err := h.store.DeleteServer(c, serverID); err != nil {
		return h.mapServerError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Members handles GET /v1/servers/:id/members.
func (h *ServerHandler) Members(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverMembership(c, h.store, serverID, userID); err != nil {
		return h.mapServerError(c, err)
	}

	members, err := h.store.Members(c, serverID)
	if err != nil {
		return h.mapServerError(c, err)
	}
	return c.JSON(members)
}

// Leave handles DELETE /v1/servers/:id/members/@me. Owners cannot leave
// their own server; they delete it instead.
func (h *ServerHandler) Leave(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	pc, err := serverMembership(c, h.store, serverID, userID)
	if err != nil {
		return h.mapServerError(c, err)
	}
	if pc.OwnerID == userID {
		return httputil.Error(c, fiber.StatusForbidden, "The owner cannot leave; delete the server instead")
	}

	if err := h.store.RemoveMember(c, serverID, userID); err != nil {
		return h.mapServerError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// mapServerError converts server-layer errors to appropriate HTTP responses.
func (h *ServerHandler) mapServerError(c fiber.Ctx, err error) error {
	switch {
	case isDenial(err):
		return err
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Server not found")
	default:
		h.log.Error().Err(err).Str("handler", "server").Msg("unhandled server store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
