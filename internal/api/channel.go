package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// ChannelHandler serves channel management and permission overwrites.
type ChannelHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(st store.Store, logger zerolog.Logger) *ChannelHandler {
	return &ChannelHandler{store: st, log: logger}
}

// Create handles POST /v1/servers/:id/channels. Requires manage_channels on
// the server. The type defaults to text.
func (h *ChannelHandler) Create(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	var body struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "Channel name is required")
	}
	channelType := model.ChannelType(body.Type)
	if body.Type == "" {
		channelType = model.ChannelText
	}
	if !model.ValidChannelType(channelType) {
		return httputil.Error(c, fiber.StatusBadRequest, "Channel type must be text or voice")
	}

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageChannels); err != nil {
		return h.mapChannelError(c, err)
	}

	ch, err := h.store.CreateChannel(c, serverID, name, channelType)
	if err != nil {
		return h.mapChannelError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ch)
}

// List handles GET /v1/servers/:id/channels. Channels the caller cannot
// read are left out, matching the visibility rule used everywhere else.
func (h *ChannelHandler) List(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverMembership(c, h.store, serverID, userID); err != nil {
		return h.mapChannelError(c, err)
	}

	channels, err := h.store.Channels(c, serverID)
	if err != nil {
		return h.mapChannelError(c, err)
	}

	visible := make([]model.Channel, 0, len(channels))
	for _, ch := range channels {
		pc, err := h.store.PermissionContext(c, serverID, userID, ch.ID)
		if err != nil {
			return h.mapChannelError(c, err)
		}
		if permission.Allows(pc.Query(userID), permission.ReadMessages) {
			visible = append(visible, ch)
		}
	}
	return c.JSON(visible)
}

// Update handles PATCH /v1/channels/:id.
func (h *ChannelHandler) Update(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "Channel name is required")
	}

	if _, err := channelCapability(c, h.store, channelID, userID, permission.ManageChannels); err != nil {
		return h.mapChannelError(c, err)
	}

	ch, err := h.store.UpdateChannel(c, channelID, name)
	if err != nil {
		return h.mapChannelError(c, err)
	}
	return c.JSON(ch)
}

// Delete handles DELETE /v1/channels/:id. The store cascades messages,
// overwrites and read markers.
func (h *ChannelHandler) Delete(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	if _, err := channelCapability(c, h.store, channelID, userID, permission.ManageChannels); err != nil {
		return h.mapChannelError(c, err)
	}

	if err := h.store.DeleteChannel(c, channelID); err != nil {
		return h.mapChannelError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Overwrites handles GET /v1/channels/:id/overwrites.
func (h *ChannelHandler) Overwrites(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	if _, err := channelCapability(c, h.store, channelID, userID, permission.ManageChannels); err != nil {
		return h.mapChannelError(c, err)
	}

	overwrites, err := h.store.Overwrites(c, channelID)
	if err != nil {
		return h.mapChannelError(c, err)
	}
	return c.JSON(overwrites)
}

// PutOverwrite handles PUT /v1/channels/:id/overwrites. One slot exists per
// (channel, targetType, targetId); putting it again replaces the allow and
// deny sets.
func (h *ChannelHandler) PutOverwrite(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	var body struct {
		TargetType string   `json:"targetType"`
		TargetID   string   `json:"targetId"`
		Allow      []string `json:"allow"`
		Deny       []string `json:"deny"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	targetType := permission.TargetType(body.TargetType)
	if !permission.ValidTarget(targetType) {
		return httputil.Error(c, fiber.StatusBadRequest, "targetType must be role or member")
	}
	if body.TargetID == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "targetId is required")
	}
	allow, err := permission.Parse(body.Allow)
	if err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, err.Error())
	}
	deny, err := permission.Parse(body.Deny)
	if err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, err.Error())
	}

	if _, err := channelCapability(c, h.store, channelID, userID, permission.ManageChannels); err != nil {
		return h.mapChannelError(c, err)
	}

	overwrite, err := h.store.UpsertOverwrite(c, store.UpsertOverwriteParams{
		ChannelID:  channelID,
		TargetType: targetType,
		TargetID:   body.TargetID,
		Allow:      allow,
		Deny:       deny,
	})
	if err != nil {
		return h.mapChannelError(c, err)
	}
	return c.JSON(overwrite)
}

// DeleteOverwrite handles DELETE /v1/channels/:id/overwrites/:overwriteId.
func (h *ChannelHandler) DeleteOverwrite(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	if _, err := channelCapability(c, h.store, channelID, userID, permission.ManageChannels); err != nil {
		return h.mapChannelError(c, err)
	}

	if err := h.store.DeleteOverwrite(c, channelID, c.Params("overwriteId")); err != nil {
		return h.mapChannelError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// mapChannelError converts channel-layer errors to appropriate HTTP
// responses.
func (h *ChannelHandler) mapChannelError(c fiber.Ctx, err error) error {
	switch {
	case isDenial(err):
		return err
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Channel not found")
	default:
		h.log.Error().Err(err).Str("handler", "channel").Msg("unhandled channel store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
