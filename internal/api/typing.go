package api

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// typingPruneThreshold caps the dedup map before expired slots are swept.
const typingPruneThreshold = 4096

// TypingHandler serves the typing indicator endpoints. Indicators are pure
// fan-out: nothing is persisted, clients clear them at expiresAt, and rapid
// repeats inside half the TTL are deduplicated server-side.
type TypingHandler struct {
	store store.Store
	hub   *gateway.Hub
	ttl   time.Duration
	log   zerolog.Logger

	mu       sync.Mutex
	lastEmit map[string]time.Time // conversation|user -> last start emit
}

// NewTypingHandler creates a new typing handler with the given indicator
// TTL.
func NewTypingHandler(st store.Store, hub *gateway.Hub, ttl time.Duration, logger zerolog.Logger) *TypingHandler {
	return &TypingHandler{
		store:    st,
		hub:      hub,
		ttl:      ttl,
		log:      logger,
		lastEmit: make(map[string]time.Time),
	}
}

// typingBody is the optional request body; isTyping defaults to true.
type typingBody struct {
	IsTyping *bool `json:"isTyping"`
}

// Channel handles POST /v1/channels/:id/typing.
func (h *TypingHandler) Channel(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	if _, err := channelCapability(c, h.store, channelID, userID, permission.SendMessages); err != nil {
		if isDenial(err) {
			return err
		}
		h.log.Error().Err(err).Str("handler", "typing").Msg("unhandled typing store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}

	h.emit(c, channelID, "", userID)
	return c.SendStatus(fiber.StatusNoContent)
}

// Thread handles POST /v1/direct-threads/:id/typing.
func (h *TypingHandler) Thread(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	threadID := c.Params("id")

	thread, err := threadParticipant(c, h.store, threadID, userID)
	if err != nil {
		if isDenial(err) {
			return err
		}
		h.log.Error().Err(err).Str("handler", "typing").Msg("unhandled typing store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}

	h.emit(c, threadID, threadID, userID, thread.ParticipantIDs...)
	return c.SendStatus(fiber.StatusNoContent)
}

// emit publishes typing.updated unless an identical start signal already
// went out within half the TTL. A stop signal always goes out and frees the
// dedup slot, so the next start is emitted immediately.
func (h *TypingHandler) emit(c fiber.Ctx, conversationID, directThreadID, userID string, participants ...string) {
	var body typingBody
	_ = c.Bind().Body(&body)
	isTyping := body.IsTyping == nil || *body.IsTyping

	now := time.Now()
	key := conversationID + "|" + userID

	h.mu.Lock()
	if len(h.lastEmit) >= typingPruneThreshold {
		for k, at := range h.lastEmit {
			if now.Sub(at) >= h.ttl {
				delete(h.lastEmit, k)
			}
		}
	}
	if isTyping {
		if last, ok := h.lastEmit[key]; ok && now.Sub(last) < h.ttl/2 {
			h.mu.Unlock()
			return
		}
		h.lastEmit[key] = now
	} else {
		delete(h.lastEmit, key)
	}
	h.mu.Unlock()

	indicator := model.TypingIndicator{
		ConversationID: conversationID,
		DirectThreadID: directThreadID,
		UserID:         userID,
		IsTyping:       isTyping,
		ExpiresAt:      model.At(now),
	}
	if isTyping {
		indicator.ExpiresAt = model.At(now.Add(h.ttl))
	}
	h.hub.Publish(conversationID, gateway.EventTypingUpdated, indicator, participants...)
}
