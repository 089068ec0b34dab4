package api

import (
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/model"
)

func TestMarkerEmptySentinel(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	server := ta.createServer(t, alice.token, "Marks")
	channel := ta.createChannel(t, alice.token, server.ID, "general", model.ChannelText)

	// A conversation the caller never marked is still 200, not 404.
	resp := ta.do(t, fiber.MethodGet, "/v1/channels/"+channel.ID+"/read-marker", alice.token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	marker := decodeJSON[model.ReadMarker](t, resp)
	if marker.LastReadMessageID != "" || !marker.UpdatedAt.IsZero() {
		t.Errorf("marker = %+v, want empty sentinel", marker)
	}
	if marker.ConversationID != channel.ID {
		t.Errorf("conversationId = %q, want %q", marker.ConversationID, channel.ID)
	}
}

func TestMarkerSet(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	server := ta.createServer(t, alice.token, "Marks")
	channel := ta.createChannel(t, alice.token, server.ID, "general", model.ChannelText)
	msg := ta.createMessage(t, alice.token, channel.ID, "read me")

	resp := ta.do(t, fiber.MethodPut, "/v1/channels/"+channel.ID+"/read-marker", alice.token, fiber.Map{
		"lastReadMessageId": msg.ID,
	})
	requireStatus(t, resp, fiber.StatusOK)
	marker := decodeJSON[model.ReadMarker](t, resp)
	if marker.LastReadMessageID != msg.ID || marker.UpdatedAt.IsZero() {
		t.Errorf("marker = %+v, want %q with update time", marker, msg.ID)
	}

	// The write sticks.
	marker = decodeJSON[model.ReadMarker](t, ta.do(t, fiber.MethodGet, "/v1/channels/"+channel.ID+"/read-marker", alice.token, nil))
	if marker.LastReadMessageID != msg.ID {
		t.Errorf("lastReadMessageId = %q, want %q", marker.LastReadMessageID, msg.ID)
	}

	// An empty id resets the marker but keeps the update time.
	resp = ta.do(t, fiber.MethodPut, "/v1/channels/"+channel.ID+"/read-marker", alice.token, fiber.Map{})
	requireStatus(t, resp, fiber.StatusOK)
	marker = decodeJSON[model.ReadMarker](t, resp)
	if marker.LastReadMessageID != "" || marker.UpdatedAt.IsZero() {
		t.Errorf("marker = %+v, want cleared with update time", marker)
	}
}

func TestMarkerRejectsForeignMessage(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	server := ta.createServer(t, alice.token, "Marks")
	general := ta.createChannel(t, alice.token, server.ID, "general", model.ChannelText)
	other := ta.createChannel(t, alice.token, server.ID, "other", model.ChannelText)
	msg := ta.createMessage(t, alice.token, other.ID, "elsewhere")

	// The marked message must live in the marked conversation.
	resp := ta.do(t, fiber.MethodPut, "/v1/channels/"+general.ID+"/read-marker", alice.token, fiber.Map{
		"lastReadMessageId": msg.ID,
	})
	requireStatus(t, resp, fiber.StatusBadRequest)

	resp = ta.do(t, fiber.MethodPut, "/v1/channels/"+general.ID+"/read-marker", alice.token, fiber.Map{
		"lastReadMessageId": "msg_unknown",
	})
	requireStatus(t, resp, fiber.StatusBadRequest)
}

func TestMarkerGuards(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	mallory := ta.register(t, "mallory")
	server := ta.createServer(t, alice.token, "Marks")
	channel := ta.createChannel(t, alice.token, server.ID, "general", model.ChannelText)
	thread := createThread(t, ta, alice.token, ta.register(t, "bob").user.ID)

	for _, target := range []string{
		"/v1/channels/" + channel.ID + "/read-marker",
		"/v1/direct-threads/" + thread.ID + "/read-marker",
		"/v1/channels/ch_unknown/read-marker",
	} {
		resp := ta.do(t, fiber.MethodGet, target, mallory.token, nil)
		requireStatus(t, resp, fiber.StatusNotFound)
		resp = ta.do(t, fiber.MethodPut, target, mallory.token, fiber.Map{})
		requireStatus(t, resp, fiber.StatusNotFound)
	}
}

func TestMarkerThread(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	thread := createThread(t, ta, alice.token, bob.user.ID)

	resp := ta.do(t, fiber.MethodPost, "/v1/direct-threads/"+thread.ID+"/messages", alice.token, fiber.Map{"body": "hello"})
	requireStatus(t, resp, fiber.StatusCreated)
	msg := decodeJSON[*model.Message](t, resp)

	// Each participant keeps an independent marker.
	resp = ta.do(t, fiber.MethodPut, "/v1/direct-threads/"+thread.ID+"/read-marker", bob.token, fiber.Map{
		"lastReadMessageId": msg.ID,
	})
	requireStatus(t, resp, fiber.StatusOK)

	marker := decodeJSON[model.ReadMarker](t, ta.do(t, fiber.MethodGet, "/v1/direct-threads/"+thread.ID+"/read-marker", alice.token, nil))
	if marker.LastReadMessageID != "" {
		t.Errorf("alice's marker = %q, want untouched", marker.LastReadMessageID)
	}
}
