package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// ModerationHandler serves kick, ban, timeout and unban plus the audit
// surfaces. Every verb requires manage_server; the owner cannot be targeted.
type ModerationHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewModerationHandler creates a new moderation handler.
func NewModerationHandler(st store.Store, logger zerolog.Logger) *ModerationHandler {
	return &ModerationHandler{store: st, log: logger}
}

// Moderate handles POST /v1/servers/:id/moderation.
func (h *ModerationHandler) Moderate(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapModerationError(c, err)
	}

	var body struct {
		TargetUserID    string                     `json:"targetUserId"`
		ActionType      model.ModerationActionType `json:"actionType"`
		Reason          string                     `json:"reason"`
		DurationSeconds int                        `json:"durationSeconds"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(body.TargetUserID) == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "targetUserId is required")
	}
	if !model.ValidModerationAction(body.ActionType) {
		return httputil.Error(c, fiber.StatusBadRequest, "actionType must be one of kick, ban, timeout, unban")
	}
	if body.TargetUserID == userID {
		return httputil.Error(c, fiber.StatusBadRequest, "You cannot moderate yourself")
	}

	params := store.ModerationParams{
		ServerID:     serverID,
		ActorID:      userID,
		TargetUserID: body.TargetUserID,
		Action:       body.ActionType,
		Reason:       strings.TrimSpace(body.Reason),
	}
	if body.ActionType == model.ModerationTimeout {
		if body.DurationSeconds <= 0 {
			return httputil.Error(c, fiber.StatusBadRequest, "durationSeconds must be positive for timeouts")
		}
		at := time.Now().Add(time.Duration(body.DurationSeconds) * time.Second)
		params.ExpiresAt = &at
	}

	action, err := h.store.Moderate(c, params)
	if err != nil {
		return h.mapModerationError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(action)
}

// AuditLog handles GET /v1/servers/:id/audit-log, newest first.
func (h *ModerationHandler) AuditLog(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapModerationError(c, err)
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.store.AuditLog(c, serverID, limit)
	if err != nil {
		return h.mapModerationError(c, err)
	}
	return c.JSON(entries)
}

// Bans handles GET /v1/servers/:id/bans.
func (h *ModerationHandler) Bans(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapModerationError(c, err)
	}

	bans, err := h.store.Bans(c, serverID)
	if err != nil {
		return h.mapModerationError(c, err)
	}
	return c.JSON(bans)
}

// mapModerationError converts moderation-layer errors to appropriate HTTP
// responses.
func (h *ModerationHandler) mapModerationError(c fiber.Ctx, err error) error {
	switch {
	case isDenial(err):
		return err
	case errors.Is(err, store.ErrModerateOwner):
		return httputil.Error(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrTimeoutExpiry):
		return httputil.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Target not found")
	default:
		h.log.Error().Err(err).Str("handler", "moderation").Msg("unhandled moderation store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
