package api

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/model"
)

func searchQuery(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return "/v1/search?" + values.Encode()
}

func TestSearchAll(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	ta.register(t, "hellokitty")

	server := ta.createServer(t, alice.token, "Acme")
	ta.addMember(t, server.ID, bob.user.ID)
	ta.createChannel(t, alice.token, server.ID, "hello-lounge", model.ChannelText)
	general := ta.createChannel(t, alice.token, server.ID, "general", model.ChannelText)
	ta.createMessage(t, alice.token, general.ID, "hello world")

	resp := ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "hello"}), bob.token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	result := decodeJSON[searchResult](t, resp)
	if len(result.Users) != 1 || result.Users[0].Username != "hellokitty" {
		t.Errorf("users = %v, want hellokitty", result.Users)
	}
	if len(result.Channels) != 1 || result.Channels[0].Name != "hello-lounge" {
		t.Errorf("channels = %v, want hello-lounge", result.Channels)
	}
	if len(result.Messages) != 1 || result.Messages[0].Body != "hello world" {
		t.Errorf("messages = %v, want hello world", result.Messages)
	}
}

func TestSearchScopes(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	ta.register(t, "bobby")

	server := ta.createServer(t, alice.token, "Acme")
	channel := ta.createChannel(t, alice.token, server.ID, "bobsleigh", model.ChannelText)
	ta.createMessage(t, alice.token, channel.ID, "bob is here")

	// A narrowed scope leaves the other sections out of the body.
	result := decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "bob", "scope": "users"}), alice.token, nil))
	if len(result.Users) != 1 || result.Channels != nil || result.Messages != nil {
		t.Errorf("users scope = %+v, want only users", result)
	}

	result = decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "bob", "scope": "channels"}), alice.token, nil))
	if len(result.Channels) != 1 || result.Users != nil || result.Messages != nil {
		t.Errorf("channels scope = %+v, want only channels", result)
	}

	result = decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "bob", "scope": "messages"}), alice.token, nil))
	if len(result.Messages) != 1 || result.Users != nil || result.Channels != nil {
		t.Errorf("messages scope = %+v, want only messages", result)
	}

	resp := ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "bob", "scope": "posts"}), alice.token, nil)
	requireStatus(t, resp, fiber.StatusBadRequest)
}

func TestSearchShortQuery(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	ta.register(t, "abel")

	// One rune is below the minimum; the result is empty, not an error.
	for _, q := range []string{"a", "", "  "} {
		resp := ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": q}), alice.token, nil)
		requireStatus(t, resp, fiber.StatusOK)
		result := decodeJSON[searchResult](t, resp)
		if result.Users != nil || result.Channels != nil || result.Messages != nil {
			t.Errorf("q=%q: result = %+v, want empty", q, result)
		}
	}
}

func TestSearchPermissionBoundary(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	mallory := ta.register(t, "mallory")

	server := ta.createServer(t, alice.token, "Acme")
	channel := ta.createChannel(t, alice.token, server.ID, "treasure-room", model.ChannelText)
	ta.createMessage(t, alice.token, channel.ID, "treasure map attached")

	// Outsiders cannot surface channels or messages they cannot open.
	result := decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "treasure"}), mallory.token, nil))
	if result.Channels != nil || result.Messages != nil {
		t.Errorf("outsider result = %+v, want nothing", result)
	}

	ta.addMember(t, server.ID, mallory.user.ID)
	result = decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "treasure"}), mallory.token, nil))
	if len(result.Channels) != 1 || len(result.Messages) != 1 {
		t.Errorf("member result = %+v, want channel and message", result)
	}
}

func TestSearchThreadMessages(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	carol := ta.register(t, "carol")
	server := ta.createServer(t, alice.token, "Acme")

	thread := createThread(t, ta, alice.token, bob.user.ID)
	resp := ta.do(t, fiber.MethodPost, "/v1/direct-threads/"+thread.ID+"/messages", alice.token, fiber.Map{"body": "secret rendezvous"})
	requireStatus(t, resp, fiber.StatusCreated)

	// Participants find thread messages; everyone else does not, and the
	// hidden backing channel never surfaces in channel results.
	result := decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "rendezvous"}), bob.token, nil))
	if len(result.Messages) != 1 {
		t.Errorf("participant messages = %v, want the thread message", result.Messages)
	}
	result = decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "rendezvous"}), carol.token, nil))
	if result.Messages != nil {
		t.Errorf("outsider messages = %v, want none", result.Messages)
	}
	result = decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "direct", "scope": "channels"}), alice.token, nil))
	if result.Channels != nil {
		t.Errorf("channels = %v, want no hidden backing channels", result.Channels)
	}

	// A server filter scopes results to that server, excluding threads.
	result = decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "rendezvous", "serverId": server.ID}), alice.token, nil))
	if result.Messages != nil {
		t.Errorf("server-scoped messages = %v, want none", result.Messages)
	}
}

func TestSearchLimit(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	server := ta.createServer(t, alice.token, "Acme")
	for i := range 25 {
		ta.createChannel(t, alice.token, server.ID, fmt.Sprintf("room-%02d", i), model.ChannelText)
	}

	result := decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "room", "scope": "channels"}), alice.token, nil))
	if len(result.Channels) != 20 {
		t.Errorf("default limit = %d channels, want 20", len(result.Channels))
	}

	result = decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "room", "scope": "channels", "limit": "3"}), alice.token, nil))
	if len(result.Channels) != 3 {
		t.Errorf("limit=3 = %d channels, want 3", len(result.Channels))
	}

	result = decodeJSON[searchResult](t, ta.do(t, fiber.MethodGet, searchQuery(map[string]string{"q": "room", "scope": "channels", "limit": "200"}), alice.token, nil))
	if len(result.Channels) != 25 {
		t.Errorf("clamped limit = %d channels, want all 25", len(result.Channels))
	}
}
