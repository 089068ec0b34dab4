package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// FriendHandler serves the friendship list and the friend request state
// machine.
type FriendHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewFriendHandler creates a new friend handler.
func NewFriendHandler(st store.Store, logger zerolog.Logger) *FriendHandler {
	return &FriendHandler{store: st, log: logger}
}

// List handles GET /v1/friends.
func (h *FriendHandler) List(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	friends, err := h.store.Friends(c, userID)
	if err != nil {
		return h.mapFriendError(c, err)
	}
	return c.JSON(friends)
}

// Remove handles DELETE /v1/friends/:id. Dropping a friendship also clears
// any pending request between the pair.
func (h *FriendHandler) Remove(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	if err := h.store.RemoveFriend(c, userID, c.Params("id")); err != nil {
		return h.mapFriendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// friendRequestsResponse groups a user's requests by direction.
type friendRequestsResponse struct {
	Incoming []model.FriendRequest `json:"incoming"`
	Outgoing []model.FriendRequest `json:"outgoing"`
}

// Requests handles GET /v1/friends/requests.
func (h *FriendHandler) Requests(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	incoming, outgoing, err := h.store.FriendRequests(c, userID)
	if err != nil {
		return h.mapFriendError(c, err)
	}
	return c.JSON(friendRequestsResponse{Incoming: incoming, Outgoing: outgoing})
}

// CreateRequest handles POST /v1/friends/requests.
func (h *FriendHandler) CreateRequest(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	var body struct {
		UserID string `json:"userId"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.UserID == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "userId is required")
	}
	if body.UserID == userID {
		return httputil.Error(c, fiber.StatusBadRequest, "You cannot send a friend request to yourself")
	}

	req, err := h.store.CreateFriendRequest(c, userID, body.UserID)
	if err != nil {
		return h.mapFriendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// Respond handles POST /v1/friends/requests/:id. Only the recipient of a
// pending request can settle it.
func (h *FriendHandler) Respond(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	var body struct {
		Action string `json:"action"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Action != "accept" && body.Action != "reject" {
		return httputil.Error(c, fiber.StatusBadRequest, "action must be accept or reject")
	}

	req, err := h.store.RespondFriendRequest(c, c.Params("id"), userID, body.Action == "accept")
	if err != nil {
		return h.mapFriendError(c, err)
	}
	return c.JSON(req)
}

// mapFriendError converts friend-layer errors to appropriate HTTP responses.
func (h *FriendHandler) mapFriendError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrAlreadyFriends),
		errors.Is(err, store.ErrRequestPending):
		return httputil.Error(c, fiber.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Str("handler", "friend").Msg("unhandled friend store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
