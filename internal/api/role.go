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

// RoleHandler serves role management under /v1/servers/:id/roles.
type RoleHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewRoleHandler creates a new role handler.
func NewRoleHandler(st store.Store, logger zerolog.Logger) *RoleHandler {
	return &RoleHandler{store: st, log: logger}
}

// Create handles POST /v1/servers/:id/roles. Requires manage_server.
func (h *RoleHandler) Create(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	var body struct {
		Name        string   `json:"name"`
		Permissions []string `json:"permissions"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "Role name is required")
	}
	grants, err := permission.Parse(body.Permissions)
	if err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, err.Error())
	}

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapRoleError(c, err)
	}

	role, err := h.store.CreateRole(c, serverID, name, grants)
	if err != nil {
		return h.mapRoleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(role)
}

// List handles GET /v1/servers/:id/roles. Any member may look.
func (h *RoleHandler) List(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverMembership(c, h.store, serverID, userID); err != nil {
		return h.mapRoleError(c, err)
	}

	roles, err := h.store.Roles(c, serverID)
	if err != nil {
		return h.mapRoleError(c, err)
	}
	return c.JSON(roles)
}

// Update handles PATCH /v1/servers/:id/roles/:roleId. Renaming the default
// role is refused by the store; permission changes to it are allowed.
func (h *RoleHandler) Update(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	var body struct {
		Name        *string  `json:"name"`
		Permissions []string `json:"permissions"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	params := store.UpdateRoleParams{}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			return httputil.Error(c, fiber.StatusBadRequest, "Role name cannot be empty")
		}
		params.Name = &name
	}
	if body.Permissions != nil {
		grants, err := permission.Parse(body.Permissions)
		if err != nil {
			return httputil.Error(c, fiber.StatusBadRequest, err.Error())
		}
		params.Permissions = &grants
	}

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapRoleError(c, err)
	}

	role, err := h.store.UpdateRole(c, serverID, c.Params("roleId"), params)
	if err != nil {
		return h.mapRoleError(c, err)
	}
	return c.JSON(role)
}

// Delete handles DELETE /v1/servers/:id/roles/:roleId.
func (h *RoleHandler) Delete(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapRoleError(c, err)
	}

	if err := h.store.DeleteRole(c, serverID, c.Params("roleId")); err != nil {
		return h.mapRoleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Assign handles PUT /v1/servers/:id/members/:userId/roles/:roleId.
func (h *RoleHandler) Assign(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapRoleError(c, err)
	}

	member, err := h.store.AssignRole(c, serverID, c.Params("userId"), c.Params("roleId"))
	if err != nil {
		return h.mapRoleError(c, err)
	}
	return c.JSON(member)
}

// Unassign handles DELETE /v1/servers/:id/members/:userId/roles/:roleId.
func (h *RoleHandler) Unassign(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapRoleError(c, err)
	}

	member, err := h.store.UnassignRole(c, serverID, c.Params("userId"), c.Params("roleId"))
	if err != nil {
		return h.mapRoleError(c, err)
	}
	return c.JSON(member)
}

// mapRoleError converts role-layer errors to appropriate HTTP responses.
func (h *RoleHandler) mapRoleError(c fiber.Ctx, err error) error {
	switch {
	case isDenial(err):
		return err
	case errors.Is(err, store.ErrImmutableRole):
		return httputil.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Role not found")
	default:
		h.log.Error().Err(err).Str("handler", "role").Msg("unhandled role store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
