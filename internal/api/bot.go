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

// BotHandler installs and lists server bots. A bot is a flagged user account
// driving the normal API with a long-lived session token.
type BotHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewBotHandler creates a new bot handler.
func NewBotHandler(st store.Store, logger zerolog.Logger) *BotHandler {
	return &BotHandler{store: st, log: logger}
}

// Create handles POST /v1/servers/:id/bots. The token in the response is the
// bot's only credential and is shown exactly once.
func (h *BotHandler) Create(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	var body struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	name := strings.ToLower(strings.TrimSpace(body.Name))
	if len(name) < 3 {
		return httputil.Error(c, fiber.StatusBadRequest, "Bot name must be at least 3 characters")
	}
	displayName := strings.TrimSpace(body.DisplayName)
	if displayName == "" {
		displayName = name
	}

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapBotError(c, err)
	}

	bot, token, err := h.store.CreateBot(c, store.CreateBotParams{
		ServerID:    serverID,
		CreatorID:   userID,
		Username:    name,
		DisplayName: displayName,
	})
	if err != nil {
		return h.mapBotError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"bot":   bot,
		"token": token,
	})
}

// List handles GET /v1/servers/:id/bots.
func (h *BotHandler) List(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverMembership(c, h.store, serverID, userID); err != nil {
		return h.mapBotError(c, err)
	}

	bots, err := h.store.Bots(c, serverID)
	if err != nil {
		return h.mapBotError(c, err)
	}
	if bots == nil {
		bots = []model.User{}
	}
	return c.JSON(bots)
}

// mapBotError converts bot-layer errors to appropriate HTTP responses.
func (h *BotHandler) mapBotError(c fiber.Ctx, err error) error {
	switch {
	case isDenial(err):
		return err
	case errors.Is(err, store.ErrUsernameTaken), errors.Is(err, store.ErrEmailTaken):
		return httputil.Error(c, fiber.StatusConflict, "Bot name is already taken")
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Server not found")
	default:
		h.log.Error().Err(err).Str("handler", "bot").Msg("unhandled bot store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
