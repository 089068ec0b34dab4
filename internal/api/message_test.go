package api

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/model"
)

func TestMessageCreate(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	srv := ta.createServer(t, alice.token, "Alpha")
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)

	resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/messages", alice.token, fiber.Map{"body": "  hello world  "})
	requireStatus(t, resp, fiber.StatusCreated)
	msg := decodeJSON[*model.Message](t, resp)

	if msg.Body != "hello world" {
		t.Errorf("body = %q, want trimmed %q", msg.Body, "hello world")
	}
	if msg.ChannelID != ch.ID || msg.ConversationID != ch.ID {
		t.Errorf("message = %+v, want channel and conversation %q", msg, ch.ID)
	}
	if msg.AuthorID != alice.user.ID {
		t.Errorf("authorId = %q, want %q", msg.AuthorID, alice.user.ID)
	}
}

func TestMessageCreateRejections(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	srv := ta.createServer(t, alice.token, "Alpha")
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)

	tests := []struct {
		name  string
		token string
		body  fiber.Map
		want  int
	}{
		{"empty body", alice.token, fiber.Map{"body": "   "}, fiber.StatusBadRequest},
		{"too long", alice.token, fiber.Map{"body": strings.Repeat("a", model.MaxMessageBody+1)}, fiber.StatusBadRequest},
		{"non-member", bob.token, fiber.Map{"body": "hi"}, fiber.StatusNotFound},
		{"unknown reply target", alice.token, fiber.Map{"body": "hi", "replyToId": "msg_unknown"}, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/messages", tt.token, tt.body)
			requireStatus(t, resp, tt.want)
		})
	}
}

func TestMessageReply(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	srv := ta.createServer(t, alice.token, "Alpha")
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)
	parent := ta.createMessage(t, alice.token, ch.ID, "original")

	resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/messages", alice.token, fiber.Map{
		"body":      "reply",
		"replyToId": parent.ID,
	})
	requireStatus(t, resp, fiber.StatusCreated)
	if msg := decodeJSON[*model.Message](t, resp); msg.ReplyToID != parent.ID {
		t.Errorf("replyToId = %q, want %q", msg.ReplyToID, parent.ID)
	}
}

func TestMessageAttachments(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	srv := ta.createServer(t, alice.token, "Alpha")
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)

	resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/messages", alice.token, fiber.Map{
		"body": "look at this",
		"attachments": []fiber.Map{{
			"id":          "att_1",
			"fileName":    "cat.png",
			"contentType": "image/png",
			"sizeBytes":   1024,
			"url":         "https://cdn.example.com/cat.png",
			"uploadedBy":  "usr_spoofed",
		}},
	})
	requireStatus(t, resp, fiber.StatusCreated)
	msg := decodeJSON[*model.Message](t, resp)
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(msg.Attachments))
	}
	// The uploader is always the caller, never what the client claims.
	if msg.Attachments[0].UploadedBy != alice.user.ID {
		t.Errorf("uploadedBy = %q, want %q", msg.Attachments[0].UploadedBy, alice.user.ID)
	}

	resp = ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/messages", alice.token, fiber.Map{
		"body": "broken",
		"attachments": []fiber.Map{{
			"id":        "att_2",
			"fileName":  "x.bin",
			"sizeBytes": 10,
		}},
	})
	requireStatus(t, resp, fiber.StatusBadRequest)

	resp = ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/messages", alice.token, fiber.Map{
		"body": "huge",
		"attachments": []fiber.Map{{
			"id":          "att_3",
			"fileName":    "big.iso",
			"contentType": "application/octet-stream",
			"sizeBytes":   model.MaxAttachmentBytes + 1,
			"url":         "https://cdn.example.com/big.iso",
		}},
	})
	requireStatus(t, resp, fiber.StatusBadRequest)
}

func TestMessageListPagination(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	srv := ta.createServer(t, alice.token, "Alpha")
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)

	ids := make([]string, 0, 5)
	for i := range 5 {
		msg := ta.createMessage(t, alice.token, ch.ID, fmt.Sprintf("message %d", i))
		ids = append(ids, msg.ID)
	}

	// Default window: everything, ascending.
	msgs := decodeJSON[[]model.Message](t, ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/messages", alice.token, nil))
	if len(msgs) != 5 {
		t.Fatalf("messages = %d, want 5", len(msgs))
	}
	for i, m := range msgs {
		if m.ID != ids[i] {
			t.Fatalf("order[%d] = %q, want %q", i, m.ID, ids[i])
		}
	}

	// after is an exclusive cursor.
	msgs = decodeJSON[[]model.Message](t, ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/messages?after="+ids[2], alice.token, nil))
	if len(msgs) != 2 || msgs[0].ID != ids[3] {
		t.Fatalf("after window = %+v, want the two newest", msgs)
	}

	// before is too.
	msgs = decodeJSON[[]model.Message](t, ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/messages?before="+ids[2], alice.token, nil))
	if len(msgs) != 2 || msgs[1].ID != ids[1] {
		t.Fatalf("before window = %+v, want the two oldest", msgs)
	}

	// limit keeps the newest page.
	msgs = decodeJSON[[]model.Message](t, ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/messages?limit=2", alice.token, nil))
	if len(msgs) != 2 || msgs[1].ID != ids[4] {
		t.Fatalf("limited window = %+v, want the newest two", msgs)
	}
}

func TestMessageUpdate(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	srv := ta.createServer(t, alice.token, "Alpha")
	ta.addMember(t, srv.ID, bob.user.ID)
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)
	msg := ta.createMessage(t, alice.token, ch.ID, "first draft")

	resp := ta.do(t, fiber.MethodPatch, "/v1/messages/"+msg.ID, alice.token, fiber.Map{"body": "final"})
	requireStatus(t, resp, fiber.StatusOK)
	updated := decodeJSON[*model.Message](t, resp)
	if updated.Body != "final" {
		t.Errorf("body = %q, want %q", updated.Body, "final")
	}
	if updated.UpdatedAt.IsZero() {
		t.Error("updatedAt not set by edit")
	}

	// Only the author can edit.
	resp = ta.do(t, fiber.MethodPatch, "/v1/messages/"+msg.ID, bob.token, fiber.Map{"body": "hijack"})
	requireStatus(t, resp, fiber.StatusForbidden)

	resp = ta.do(t, fiber.MethodPatch, "/v1/messages/msg_unknown", alice.token, fiber.Map{"body": "ghost"})
	requireStatus(t, resp, fiber.StatusNotFound)
}

func TestMessageDelete(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	srv := ta.createServer(t, alice.token, "Alpha")
	ta.addMember(t, srv.ID, bob.user.ID)
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)
	msg := ta.createMessage(t, alice.token, ch.ID, "delete me")

	resp := ta.do(t, fiber.MethodDelete, "/v1/messages/"+msg.ID, bob.token, nil)
	requireStatus(t, resp, fiber.StatusForbidden)

	resp = ta.do(t, fiber.MethodDelete, "/v1/messages/"+msg.ID, alice.token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	ref := decodeJSON[model.MessageRef](t, resp)
	if ref.ID != msg.ID || ref.ConversationID != ch.ID {
		t.Errorf("ref = %+v, want id %q in %q", ref, msg.ID, ch.ID)
	}

	msgs := decodeJSON[[]model.Message](t, ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/messages", alice.token, nil))
	if len(msgs) != 0 {
		t.Errorf("messages after delete = %d, want 0", len(msgs))
	}
}

func TestMessageReactions(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	srv := ta.createServer(t, alice.token, "Alpha")
	ta.addMember(t, srv.ID, bob.user.ID)
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)
	msg := ta.createMessage(t, alice.token, ch.ID, "react to me")

	react := func(token, emoji string) []model.ReactionSummary {
		t.Helper()
		resp := ta.do(t, fiber.MethodPost, "/v1/messages/"+msg.ID+"/reactions", token, fiber.Map{"emoji": emoji})
		requireStatus(t, resp, fiber.StatusOK)
		return decodeJSON[[]model.ReactionSummary](t, resp)
	}

	if got := react(alice.token, "👍"); len(got) != 1 || got[0].Count != 1 {
		t.Fatalf("reactions = %+v, want 👍 x1", got)
	}
	if got := react(bob.token, "👍"); len(got) != 1 || got[0].Count != 2 {
		t.Fatalf("reactions = %+v, want 👍 x2", got)
	}
	// Re-adding the same emoji is a no-op, not an error.
	if got := react(bob.token, "👍"); len(got) != 1 || got[0].Count != 2 {
		t.Fatalf("reactions after no-op = %+v, want 👍 x2", got)
	}

	resp := ta.do(t, fiber.MethodDelete, "/v1/messages/"+msg.ID+"/reactions/%F0%9F%91%8D", bob.token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	if got := decodeJSON[[]model.ReactionSummary](t, resp); len(got) != 1 || got[0].Count != 1 {
		t.Fatalf("reactions after remove = %+v, want 👍 x1", got)
	}

	resp = ta.do(t, fiber.MethodPost, "/v1/messages/"+msg.ID+"/reactions", alice.token, fiber.Map{"emoji": "  "})
	requireStatus(t, resp, fiber.StatusBadRequest)
}

func TestMessageConversationHiddenFromOutsiders(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	mallory := ta.register(t, "mallory")
	srv := ta.createServer(t, alice.token, "Alpha")
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)
	msg := ta.createMessage(t, alice.token, ch.ID, "secret")

	// Reacting to or listing a message in an invisible conversation is 404.
	resp := ta.do(t, fiber.MethodPost, "/v1/messages/"+msg.ID+"/reactions", mallory.token, fiber.Map{"emoji": "👀"})
	requireStatus(t, resp, fiber.StatusNotFound)
	resp = ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/messages", mallory.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)
}
