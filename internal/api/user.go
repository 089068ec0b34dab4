package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/auth"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// UserHandler serves user profile and lookup endpoints.
type UserHandler struct {
	store store.Store
	auth  *auth.Service
	log   zerolog.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(st store.Store, authSvc *auth.Service, logger zerolog.Logger) *UserHandler {
	return &UserHandler{store: st, auth: authSvc, log: logger}
}

// Me handles GET /v1/me. The auth middleware already resolved the session,
// so the user rides in from Locals.
func (h *UserHandler) Me(c fiber.Ctx) error {
	u, ok := c.Locals("user").(*model.User)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	return c.JSON(u)
}

// DeleteMe handles DELETE /v1/me. The store cascades sessions, push
// subscriptions, friendships and thread participation.
func (h *UserHandler) DeleteMe(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	if err := h.auth.DeleteAccount(c, userID); err != nil {
		return h.mapUserError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Get handles GET /v1/users/:id.
func (h *UserHandler) Get(c fiber.Ctx) error {
	u, err := h.store.UserByID(c, c.Params("id"))
	if err != nil {
		return h.mapUserError(c, err)
	}
	return c.JSON(u)
}

// Search handles GET /v1/users/search?q=. Queries shorter than two
// characters return an empty list rather than an error, so type-ahead
// clients need no special casing.
func (h *UserHandler) Search(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	query := strings.TrimSpace(c.Query("q"))
	if len([]rune(query)) < 2 {
		return c.JSON([]model.User{})
	}

	users, err := h.store.SearchUsers(c, userID, query)
	if err != nil {
		return h.mapUserError(c, err)
	}
	return c.JSON(users)
}

// mapUserError converts user-layer errors to appropriate HTTP responses.
func (h *UserHandler) mapUserError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "User not found")
	default:
		h.log.Error().Err(err).Str("handler", "user").Msg("unhandled user store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
