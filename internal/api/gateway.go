package api

import (
	"errors"

	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/auth"
	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// GatewayHandler serves the WebSocket upgrade endpoint for the real-time
// gateway.
type GatewayHandler struct {
	hub   *gateway.Hub
	store store.Store
	log   zerolog.Logger
}

// NewGatewayHandler creates a new gateway handler.
func NewGatewayHandler(hub *gateway.Hub, st store.Store, logger zerolog.Logger) *GatewayHandler {
	return &GatewayHandler{hub: hub, store: st, log: logger}
}

// Upgrade handles GET /v1/ws?token=…. The session token rides in the query
// string because browsers cannot set headers on WebSocket connects; the
// Authorization header still works for non-browser clients. The token is
// resolved before the upgrade so unauthenticated clients get a plain 401.
func (h *GatewayHandler) Upgrade(c fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		token = auth.RequestToken(c)
	}
	if token == "" {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing authentication token")
	}

	u, err := h.store.SessionUser(c, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httputil.Error(c, fiber.StatusUnauthorized, "Invalid or expired session")
		}
		h.log.Error().Err(err).Msg("Session lookup failed during upgrade")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}

	userID := u.ID
	return websocket.New(func(conn *websocket.Conn) {
		h.hub.ServeWebSocket(conn.Conn, userID)
	})(c)
}
