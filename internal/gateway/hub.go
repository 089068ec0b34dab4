// Package gateway is the real-time fan-out layer: it tracks WebSocket
// clients, their conversation subscriptions, and delivers events produced by
// the HTTP handlers to every socket that should see them.
package gateway

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/config"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// ErrMaxConnections is returned when the gateway is at its connection cap.
var ErrMaxConnections = errors.New("gateway connection limit reached")

// permissionCheckTimeout bounds the store lookups behind a subscribe frame.
const permissionCheckTimeout = 5 * time.Second

// Hub is the connection registry and event distributor. It keeps two
// indexes: sockets by subscribed conversation, and sockets by user. All
// index mutations happen under one mutex; delivery happens outside it
// through each client's buffered send channel.
type Hub struct {
	store      store.Store
	sendBuffer int
	maxConns   int
	log        zerolog.Logger

	mu                  sync.Mutex
	conversationSockets map[string]map[*Client]struct{}
	userSockets         map[string]map[*Client]struct{}
	connections         int
}

// NewHub creates a hub sized from the gateway configuration.
func NewHub(st store.Store, cfg *config.Config, logger zerolog.Logger) *Hub {
	return &Hub{
		store:               st,
		sendBuffer:          cfg.GatewaySendBuffer,
		maxConns:            cfg.GatewayMaxConnections,
		log:                 logger.With().Str("component", "gateway").Logger(),
		conversationSockets: make(map[string]map[*Client]struct{}),
		userSockets:         make(map[string]map[*Client]struct{}),
	}
}

// ServeWebSocket runs an authenticated, upgraded connection until it closes.
// It sends the ready event, then starts the client's read and write pumps.
func (h *Hub) ServeWebSocket(conn *websocket.Conn, userID string) {
	client := newClient(h, conn, userID, h.sendBuffer, h.log)

	if err := h.register(client); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("Rejecting gateway connection")
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "connection limit reached")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	ready, err := Encode(EventReady, readyPayload{UserID: userID})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build ready event")
		h.unregister(client)
		_ = conn.Close()
		return
	}
	client.enqueue(ready)

	go client.writePump()
	client.readPump()
}

// register adds a client to the user index. A user may hold several
// connections at once; each is tracked separately.
func (h *Hub) register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections >= h.maxConns {
		return ErrMaxConnections
	}

	set := h.userSockets[c.userID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.userSockets[c.userID] = set
	}
	set[c] = struct{}{}
	h.connections++

	h.log.Debug().Str("user_id", c.userID).Int("total", h.connections).Msg("Client registered")
	return nil
}

// unregister removes a client from every index and closes its send channel.
// It is safe to call more than once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.userSockets[c.userID][c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.userSockets[c.userID], c)
	if len(h.userSockets[c.userID]) == 0 {
		delete(h.userSockets, c.userID)
	}
	for cid := range c.subscriptions {
		h.dropFromConversation(c, cid)
	}
	h.connections--
	total := h.connections
	h.mu.Unlock()

	c.closeSend()
	h.log.Debug().Str("user_id", c.userID).Int("total", total).Msg("Client unregistered")
}

// dropFromConversation removes one socket from a conversation set. Callers
// must hold h.mu.
func (h *Hub) dropFromConversation(c *Client, conversationID string) {
	set := h.conversationSockets[conversationID]
	if set == nil {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conversationSockets, conversationID)
	}
}

// subscribe checks read permission for the conversation and, if granted,
// adds the socket to the conversation index and acknowledges. Denials and
// unknown conversations produce an error frame, never a subscription.
func (h *Hub) subscribe(c *Client, conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), permissionCheckTimeout)
	defer cancel()

	if !h.canRead(ctx, c.userID, conversationID) {
		c.sendError("Cannot subscribe to this conversation")
		return
	}

	h.mu.Lock()
	set := h.conversationSockets[conversationID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.conversationSockets[conversationID] = set
	}
	set[c] = struct{}{}
	c.subscriptions[conversationID] = struct{}{}
	h.mu.Unlock()

	if data, err := Encode(EventSubscribed, subscriptionPayload{ChannelID: conversationID}); err == nil {
		c.enqueue(data)
	}
}

// unsubscribe removes the socket from the conversation index and
// acknowledges. Unsubscribing from something never subscribed to is a no-op
// that still acknowledges, so clients can reconcile blindly.
func (h *Hub) unsubscribe(c *Client, conversationID string) {
	h.mu.Lock()
	h.dropFromConversation(c, conversationID)
	delete(c.subscriptions, conversationID)
	h.mu.Unlock()

	if data, err := Encode(EventUnsubscribed, subscriptionPayload{ChannelID: conversationID}); err == nil {
		c.enqueue(data)
	}
}

// canRead decides whether the user may observe a conversation. Thread ids
// resolve by participation; channel ids resolve through the permission
// kernel with the membership visibility rule applied first.
func (h *Hub) canRead(ctx context.Context, userID, conversationID string) bool {
	th, err := h.store.DirectThreadByID(ctx, conversationID)
	if err == nil {
		return slices.Contains(th.ParticipantIDs, userID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		h.log.Error().Err(err).Msg("Thread lookup failed during subscribe")
		return false
	}

	ch, err := h.store.ChannelByID(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Error().Err(err).Msg("Channel lookup failed during subscribe")
		}
		return false
	}
	pc, err := h.store.PermissionContext(ctx, ch.ServerID, userID, ch.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Error().Err(err).Msg("Permission lookup failed during subscribe")
		}
		return false
	}
	if !pc.IsMember && pc.OwnerID != userID {
		return false
	}
	return permission.Allows(pc.Query(userID), permission.ReadMessages)
}

// Publish encodes the event once and delivers it to the union of the
// conversation's subscribers and every socket of the additional users. An
// empty conversation id addresses by user fan-out alone.
func (h *Hub) Publish(conversationID, eventType string, payload any, additionalUserIDs ...string) {
	data, err := Encode(eventType, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", eventType).Msg("Failed to encode event")
		return
	}

	h.mu.Lock()
	targets := make(map[*Client]struct{}, len(h.conversationSockets[conversationID]))
	for c := range h.conversationSockets[conversationID] {
		targets[c] = struct{}{}
	}
	for _, uid := range additionalUserIDs {
		for c := range h.userSockets[uid] {
			targets[c] = struct{}{}
		}
	}
	h.mu.Unlock()

	for c := range targets {
		c.enqueue(data)
	}
}

// Shutdown closes every connected client. New connections race the caller
// shutting down the listener; they are closed as they register.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, h.connections)
	for _, set := range h.userSockets {
		for c := range set {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
		c.closeConn()
	}
}
