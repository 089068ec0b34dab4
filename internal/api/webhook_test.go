package api

import (
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
)

func createWebhook(t *testing.T, ta *testApp, token, channelID, name string) *model.Webhook {
	t.Helper()
	resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+channelID+"/webhooks", token, fiber.Map{"name": name})
	requireStatus(t, resp, fiber.StatusCreated)
	return decodeJSON[*model.Webhook](t, resp)
}

func TestWebhookCreate(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	srv := ta.createServer(t, alice.token, "Acme")
	ch := ta.createChannel(t, alice.token, srv.ID, "releases", model.ChannelText)

	wh := createWebhook(t, ta, alice.token, ch.ID, "deploy bot")
	if !strings.HasPrefix(wh.ID, "whk_") {
		t.Errorf("webhook id = %q, want whk_ prefix", wh.ID)
	}
	if wh.ChannelID != ch.ID || wh.ServerID != srv.ID || wh.CreatedBy != alice.user.ID {
		t.Errorf("webhook = %+v, want channel %s in server %s", wh, ch.ID, srv.ID)
	}
	// The plaintext token appears in the create response and nowhere else.
	if wh.Token == "" {
		t.Fatal("create response carries no token")
	}
	listed := decodeJSON[[]model.Webhook](t, ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/webhooks", alice.token, nil))
	if len(listed) != 1 {
		t.Fatalf("got %d webhooks, want 1", len(listed))
	}
	if listed[0].Token != "" {
		t.Error("list response leaks the token")
	}
}

func TestWebhookCreateValidation(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	srv := ta.createServer(t, alice.token, "Acme")
	ch := ta.createChannel(t, alice.token, srv.ID, "releases", model.ChannelText)

	resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/webhooks", alice.token, fiber.Map{"name": "   "})
	requireStatus(t, resp, fiber.StatusBadRequest)

	resp = ta.do(t, fiber.MethodPost, "/v1/channels/chn_unknown/webhooks", alice.token, fiber.Map{"name": "deploy"})
	requireStatus(t, resp, fiber.StatusNotFound)
}

func TestWebhookManagerOnly(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	mallory := ta.register(t, "mallory")
	srv := ta.createServer(t, alice.token, "Acme")
	ch := ta.createChannel(t, alice.token, srv.ID, "releases", model.ChannelText)
	ta.addMember(t, srv.ID, bob.user.ID)
	wh := createWebhook(t, ta, alice.token, ch.ID, "deploy")

	// Members without manage_channels get 403, outsiders cannot even see the
	// channel.
	for _, tc := range []struct {
		name   string
		token  string
		status int
	}{
		{"member", bob.token, fiber.StatusForbidden},
		{"outsider", mallory.token, fiber.StatusNotFound},
	} {
		resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/webhooks", tc.token, fiber.Map{"name": "rogue"})
		if resp.StatusCode != tc.status {
			t.Errorf("%s create: status = %d, want %d", tc.name, resp.StatusCode, tc.status)
		}
		resp = ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/webhooks", tc.token, nil)
		if resp.StatusCode != tc.status {
			t.Errorf("%s list: status = %d, want %d", tc.name, resp.StatusCode, tc.status)
		}
		resp = ta.do(t, fiber.MethodDelete, "/v1/channels/"+ch.ID+"/webhooks/"+wh.ID, tc.token, nil)
		if resp.StatusCode != tc.status {
			t.Errorf("%s delete: status = %d, want %d", tc.name, resp.StatusCode, tc.status)
		}
	}
}

func TestWebhookExecute(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	srv := ta.createServer(t, alice.token, "Acme")
	ch := ta.createChannel(t, alice.token, srv.ID, "releases", model.ChannelText)
	wh := createWebhook(t, ta, alice.token, ch.ID, "deploy")

	// No Authorization header: the path token is the whole credential.
	resp := ta.do(t, fiber.MethodPost, "/v1/webhooks/"+wh.ID+"/"+wh.Token, "", fiber.Map{
		"body": "<b>v1.4.2</b> rolled out",
	})
	requireStatus(t, resp, fiber.StatusCreated)
	msg := decodeJSON[*model.Message](t, resp)
	if msg.AuthorID != wh.ID {
		t.Errorf("authorId = %q, want the webhook %q", msg.AuthorID, wh.ID)
	}
	if msg.Body != "v1.4.2 rolled out" {
		t.Errorf("body = %q, want markup stripped", msg.Body)
	}
	if msg.ConversationID != ch.ID {
		t.Errorf("conversationId = %q, want %q", msg.ConversationID, ch.ID)
	}

	// The message lands in the channel like any other.
	msgs := decodeJSON[[]model.Message](t, ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/messages", alice.token, nil))
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Fatalf("channel messages = %+v, want the webhook message", msgs)
	}
}

func TestWebhookExecuteRejections(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	srv := ta.createServer(t, alice.token, "Acme")
	ch := ta.createChannel(t, alice.token, srv.ID, "releases", model.ChannelText)
	wh := createWebhook(t, ta, alice.token, ch.ID, "deploy")

	// Wrong token and unknown id are indistinguishable.
	resp := ta.do(t, fiber.MethodPost, "/v1/webhooks/"+wh.ID+"/bogus", "", fiber.Map{"body": "hi"})
	requireStatus(t, resp, fiber.StatusNotFound)
	if body := decodeJSON[httputil.ErrorResponse](t, resp); body.Error != "Webhook not found" {
		t.Errorf("error = %q, want %q", body.Error, "Webhook not found")
	}
	resp = ta.do(t, fiber.MethodPost, "/v1/webhooks/whk_unknown/"+wh.Token, "", fiber.Map{"body": "hi"})
	requireStatus(t, resp, fiber.StatusNotFound)

	// A body that is pure markup sanitises to nothing.
	resp = ta.do(t, fiber.MethodPost, "/v1/webhooks/"+wh.ID+"/"+wh.Token, "", fiber.Map{"body": "<img src=x>"})
	requireStatus(t, resp, fiber.StatusBadRequest)
}

func TestWebhookDelete(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	srv := ta.createServer(t, alice.token, "Acme")
	ch := ta.createChannel(t, alice.token, srv.ID, "releases", model.ChannelText)
	other := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)
	wh := createWebhook(t, ta, alice.token, ch.ID, "deploy")

	// Deletion is scoped to the owning channel.
	resp := ta.do(t, fiber.MethodDelete, "/v1/channels/"+other.ID+"/webhooks/"+wh.ID, alice.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)

	resp = ta.do(t, fiber.MethodDelete, "/v1/channels/"+ch.ID+"/webhooks/"+wh.ID, alice.token, nil)
	requireStatus(t, resp, fiber.StatusNoContent)

	resp = ta.do(t, fiber.MethodPost, "/v1/webhooks/"+wh.ID+"/"+wh.Token, "", fiber.Map{"body": "late"})
	requireStatus(t, resp, fiber.StatusNotFound)

	resp = ta.do(t, fiber.MethodDelete, "/v1/channels/"+ch.ID+"/webhooks/"+wh.ID, alice.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)
}
