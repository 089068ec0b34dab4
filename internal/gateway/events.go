package gateway

import (
	"encoding/json"
	"fmt"
)

// Server-to-client event types.
const (
	EventReady               = "ready"
	EventSubscribed          = "subscribed"
	EventUnsubscribed        = "unsubscribed"
	EventMessageCreated      = "message.created"
	EventMessageUpdated      = "message.updated"
	EventMessageDeleted      = "message.deleted"
	EventReactionUpdated     = "reaction.updated"
	EventTypingUpdated       = "typing.updated"
	EventThreadCreated       = "direct-thread.created"
	EventPresenceUpdated     = "presence.updated"
	EventVoiceSessionUpdated = "voice.session.updated"
	EventPong                = "pong"
	EventError               = "error"
)

// Client-to-server frame types.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	framePing        = "ping"
)

// Envelope is the wire shape of every server-to-client event.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// clientFrame is the wire shape of every client-to-server frame.
type clientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

// readyPayload acknowledges a successful connection.
type readyPayload struct {
	UserID string `json:"userId"`
}

// subscriptionPayload acknowledges a subscription change.
type subscriptionPayload struct {
	ChannelID string `json:"channelId"`
}

// errorPayload reports a rejected frame without closing the connection.
type errorPayload struct {
	Error string `json:"error"`
}

// Encode marshals an envelope for the wire.
func Encode(eventType string, payload any) ([]byte, error) {
	data, err := json.Marshal(Envelope{Type: eventType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return data, nil
}
