package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// ThreadHandler serves direct threads: 1:1 DMs and group conversations.
type ThreadHandler struct {
	store store.Store
	hub   *gateway.Hub
	log   zerolog.Logger
}

// NewThreadHandler creates a new direct-thread handler.
func NewThreadHandler(st store.Store, hub *gateway.Hub, logger zerolog.Logger) *ThreadHandler {
	return &ThreadHandler{store: st, hub: hub, log: logger}
}

// Create handles POST /v1/direct-threads. Creating a DM for a pair that
// already has one returns the existing thread with 200 instead of 201, and
// emits nothing.
func (h *ThreadHandler) Create(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	var body struct {
		ParticipantIDs []string `json:"participantIds"`
		Title          string   `json:"title"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	thread, created, err := h.store.CreateDirectThread(c, store.CreateThreadParams{
		OwnerID:        userID,
		ParticipantIDs: body.ParticipantIDs,
		Title:          strings.TrimSpace(body.Title),
	})
	if err != nil {
		return h.mapThreadError(c, err)
	}

	if created {
		h.hub.Publish("", gateway.EventThreadCreated, thread, thread.ParticipantIDs...)
		return c.Status(fiber.StatusCreated).JSON(thread)
	}
	return c.JSON(thread)
}

// List handles GET /v1/direct-threads, ascending by updatedAt so the most
// recently active thread comes last.
func (h *ThreadHandler) List(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	threads, err := h.store.DirectThreadsForUser(c, userID)
	if err != nil {
		return h.mapThreadError(c, err)
	}
	return c.JSON(threads)
}

// Get handles GET /v1/direct-threads/:id.
func (h *ThreadHandler) Get(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	thread, err := threadParticipant(c, h.store, c.Params("id"), userID)
	if err != nil {
		return h.mapThreadError(c, err)
	}
	return c.JSON(thread)
}

// Leave handles DELETE /v1/direct-threads/:id/participants/@me. The last
// participant to leave tears down the backing server and everything in it.
func (h *ThreadHandler) Leave(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	threadID := c.Params("id")

	if _, err := threadParticipant(c, h.store, threadID, userID); err != nil {
		return h.mapThreadError(c, err)
	}

	if _, err := h.store.LeaveDirectThread(c, threadID, userID); err != nil {
		return h.mapThreadError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// mapThreadError converts thread-layer errors to appropriate HTTP responses.
func (h *ThreadHandler) mapThreadError(c fiber.Ctx, err error) error {
	switch {
	case isDenial(err):
		return err
	case errors.Is(err, store.ErrThreadParticipants):
		return httputil.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Thread not found")
	default:
		h.log.Error().Err(err).Str("handler", "thread").Msg("unhandled thread store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
