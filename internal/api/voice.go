package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
	"github.com/aledlb8/Mango-sub000/internal/voice"
)

// VoiceHandler proxies signaling actions to the voice upstream. The gateway
// only authorises the caller against the target and relays the upstream's
// session snapshot; it never owns call state.
type VoiceHandler struct {
	store store.Store
	voice *voice.Service
	log   zerolog.Logger
}

// NewVoiceHandler creates a new voice handler. service may be nil when no
// upstream is configured, in which case every action reports 503.
func NewVoiceHandler(st store.Store, service *voice.Service, logger zerolog.Logger) *VoiceHandler {
	return &VoiceHandler{store: st, voice: service, log: logger}
}

func validVoiceAction(action string) bool {
	switch action {
	case voice.ActionJoin, voice.ActionLeave, voice.ActionState, voice.ActionHeartbeat, voice.ActionScreenShare:
		return true
	}
	return false
}

// ChannelAction handles POST /v1/channels/:id/voice/:action. The channel
// must be a voice channel the caller can read.
func (h *VoiceHandler) ChannelAction(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")
	action := c.Params("action")
	if !validVoiceAction(action) {
		return httputil.Error(c, fiber.StatusNotFound, "Unknown voice action")
	}

	ch, err := channelCapability(c, h.store, channelID, userID, permission.ReadMessages)
	if err != nil {
		return h.mapVoiceError(c, err)
	}
	if ch.Type != model.ChannelVoice {
		return httputil.Error(c, fiber.StatusBadRequest, "Channel does not support voice")
	}

	return h.dispatch(c, voice.Request{
		Action:      action,
		UserID:      userID,
		TargetKind:  voice.TargetChannel,
		TargetID:    channelID,
		ServerID:    ch.ServerID,
		ScreenShare: action == voice.ActionScreenShare,
		Body:        c.Body(),
	})
}

// ThreadAction handles POST /v1/direct-threads/:id/voice/:action. Any
// participant can start or join a call on their thread.
func (h *VoiceHandler) ThreadAction(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	threadID := c.Params("id")
	action := c.Params("action")
	if !validVoiceAction(action) {
		return httputil.Error(c, fiber.StatusNotFound, "Unknown voice action")
	}

	if _, err := threadParticipant(c, h.store, threadID, userID); err != nil {
		return h.mapVoiceError(c, err)
	}

	return h.dispatch(c, voice.Request{
		Action:      action,
		UserID:      userID,
		TargetKind:  voice.TargetThread,
		TargetID:    threadID,
		ScreenShare: action == voice.ActionScreenShare,
		Body:        c.Body(),
	})
}

func (h *VoiceHandler) dispatch(c fiber.Ctx, req voice.Request) error {
	if h.voice == nil {
		return httputil.Error(c, fiber.StatusServiceUnavailable, "Voice is not configured")
	}

	session, err := h.voice.Dispatch(c, req)
	if err != nil {
		return h.mapVoiceError(c, err)
	}
	return c.JSON(session)
}

// mapVoiceError converts voice-layer errors to appropriate HTTP responses.
// Upstream client errors are relayed with their original status.
func (h *VoiceHandler) mapVoiceError(c fiber.Ctx, err error) error {
	var upstream *voice.UpstreamError
	switch {
	case isDenial(err):
		return err
	case errors.As(err, &upstream):
		return httputil.Error(c, upstream.Status, "Voice service rejected the request")
	case errors.Is(err, voice.ErrUnavailable):
		return httputil.Error(c, fiber.StatusServiceUnavailable, "Voice service is unavailable")
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Channel not found")
	default:
		h.log.Error().Err(err).Str("handler", "voice").Msg("unhandled voice service error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
