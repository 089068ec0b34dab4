package api

import (
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/model"
)

func TestChannelCreate(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	srv := ta.createServer(t, alice.token, "Alpha")
	ta.addMember(t, srv.ID, bob.user.ID)

	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)
	if ch.Type != model.ChannelText {
		t.Errorf("type = %q, want %q", ch.Type, model.ChannelText)
	}
	voiceCh := ta.createChannel(t, alice.token, srv.ID, "lounge", model.ChannelVoice)
	if voiceCh.Type != model.ChannelVoice {
		t.Errorf("type = %q, want %q", voiceCh.Type, model.ChannelVoice)
	}

	// An omitted type means text.
	resp := ta.do(t, fiber.MethodPost, "/v1/servers/"+srv.ID+"/channels", alice.token, fiber.Map{"name": "random"})
	requireStatus(t, resp, fiber.StatusCreated)
	if ch := decodeJSON[*model.Channel](t, resp); ch.Type != model.ChannelText {
		t.Errorf("default type = %q, want %q", ch.Type, model.ChannelText)
	}

	tests := []struct {
		name  string
		token string
		body  fiber.Map
		want  int
	}{
		{"bad type", alice.token, fiber.Map{"name": "x", "type": "video"}, fiber.StatusBadRequest},
		{"empty name", alice.token, fiber.Map{"name": "  "}, fiber.StatusBadRequest},
		{"member without capability", bob.token, fiber.Map{"name": "nope"}, fiber.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ta.do(t, fiber.MethodPost, "/v1/servers/"+srv.ID+"/channels", tt.token, tt.body)
			requireStatus(t, resp, tt.want)
		})
	}
}

func TestChannelUpdateDelete(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	srv := ta.createServer(t, alice.token, "Alpha")
	ta.addMember(t, srv.ID, bob.user.ID)
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)

	resp := ta.do(t, fiber.MethodPatch, "/v1/channels/"+ch.ID, alice.token, fiber.Map{"name": "announcements"})
	requireStatus(t, resp, fiber.StatusOK)
	if updated := decodeJSON[*model.Channel](t, resp); updated.Name != "announcements" {
		t.Errorf("name = %q, want %q", updated.Name, "announcements")
	}

	resp = ta.do(t, fiber.MethodPatch, "/v1/channels/"+ch.ID, bob.token, fiber.Map{"name": "sneaky"})
	requireStatus(t, resp, fiber.StatusForbidden)

	resp = ta.do(t, fiber.MethodDelete, "/v1/channels/"+ch.ID, alice.token, nil)
	requireStatus(t, resp, fiber.StatusNoContent)

	resp = ta.do(t, fiber.MethodPatch, "/v1/channels/"+ch.ID, alice.token, fiber.Map{"name": "ghost"})
	requireStatus(t, resp, fiber.StatusNotFound)
}

func TestChannelListVisibility(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	srv := ta.createServer(t, alice.token, "Alpha")
	ta.addMember(t, srv.ID, bob.user.ID)

	general := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)
	staff := ta.createChannel(t, alice.token, srv.ID, "staff", model.ChannelText)

	// Deny read on #staff for bob specifically.
	resp := ta.do(t, fiber.MethodPut, "/v1/channels/"+staff.ID+"/overwrites", alice.token, fiber.Map{
		"targetType": "member",
		"targetId":   bob.user.ID,
		"deny":       []string{"read_messages"},
	})
	requireStatus(t, resp, fiber.StatusOK)

	channels := decodeJSON[[]model.Channel](t, ta.do(t, fiber.MethodGet, "/v1/servers/"+srv.ID+"/channels", bob.token, nil))
	if len(channels) != 1 || channels[0].ID != general.ID {
		t.Fatalf("bob sees %+v, want only #general", channels)
	}

	// The owner still sees everything.
	channels = decodeJSON[[]model.Channel](t, ta.do(t, fiber.MethodGet, "/v1/servers/"+srv.ID+"/channels", alice.token, nil))
	if len(channels) != 2 {
		t.Fatalf("alice sees %d channels, want 2", len(channels))
	}

	// A hidden channel reads as missing, not forbidden.
	resp = ta.do(t, fiber.MethodGet, "/v1/channels/"+staff.ID+"/messages", bob.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)
}

func TestChannelOverwrites(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	srv := ta.createServer(t, alice.token, "Alpha")
	ta.addMember(t, srv.ID, bob.user.ID)
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)

	put := func(allow, deny []string) *model.Overwrite {
		t.Helper()
		resp := ta.do(t, fiber.MethodPut, "/v1/channels/"+ch.ID+"/overwrites", alice.token, fiber.Map{
			"targetType": "member",
			"targetId":   bob.user.ID,
			"allow":      allow,
			"deny":       deny,
		})
		requireStatus(t, resp, fiber.StatusOK)
		return decodeJSON[*model.Overwrite](t, resp)
	}

	first := put(nil, []string{"send_messages"})
	second := put([]string{"send_messages"}, nil)

	// Same slot, replaced allow/deny pair.
	if first.ID != second.ID {
		t.Errorf("overwrite id changed %q -> %q, want stable slot", first.ID, second.ID)
	}
	if !second.Allow.Has("send_messages") || second.Deny.Has("send_messages") {
		t.Errorf("second = %+v, want allow send_messages", second)
	}

	list := decodeJSON[[]model.Overwrite](t, ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/overwrites", alice.token, nil))
	if len(list) != 1 {
		t.Fatalf("overwrites = %d, want 1", len(list))
	}

	tests := []struct {
		name string
		body fiber.Map
		want int
	}{
		{"bad target type", fiber.Map{"targetType": "group", "targetId": "x"}, fiber.StatusBadRequest},
		{"missing target id", fiber.Map{"targetType": "member"}, fiber.StatusBadRequest},
		{"unknown capability", fiber.Map{"targetType": "member", "targetId": bob.user.ID, "allow": []string{"fly"}}, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ta.do(t, fiber.MethodPut, "/v1/channels/"+ch.ID+"/overwrites", alice.token, tt.body)
			requireStatus(t, resp, tt.want)
		})
	}

	resp := ta.do(t, fiber.MethodDelete, "/v1/channels/"+ch.ID+"/overwrites/"+second.ID, alice.token, nil)
	requireStatus(t, resp, fiber.StatusNoContent)
	list = decodeJSON[[]model.Overwrite](t, ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/overwrites", alice.token, nil))
	if len(list) != 0 {
		t.Fatalf("overwrites after delete = %d, want 0", len(list))
	}

	// Managing overwrites needs manage_channels.
	resp = ta.do(t, fiber.MethodGet, "/v1/channels/"+ch.ID+"/overwrites", bob.token, nil)
	requireStatus(t, resp, fiber.StatusForbidden)
}

func TestChannelOverwritePrecedence(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	srv := ta.createServer(t, alice.token, "Alpha")
	ta.addMember(t, srv.ID, bob.user.ID)
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)

	roles := decodeJSON[[]model.Role](t, ta.do(t, fiber.MethodGet, "/v1/servers/"+srv.ID+"/roles", alice.token, nil))
	var defaultRoleID string
	for _, r := range roles {
		if r.IsDefault {
			defaultRoleID = r.ID
		}
	}

	// A role-level deny silences the channel for plain members.
	resp := ta.do(t, fiber.MethodPut, "/v1/channels/"+ch.ID+"/overwrites", alice.token, fiber.Map{
		"targetType": "role",
		"targetId":   defaultRoleID,
		"deny":       []string{"send_messages"},
	})
	requireStatus(t, resp, fiber.StatusOK)
	resp = ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/messages", bob.token, fiber.Map{"body": "hi"})
	requireStatus(t, resp, fiber.StatusForbidden)

	// A member-level allow is applied last and wins over the role deny.
	resp = ta.do(t, fiber.MethodPut, "/v1/channels/"+ch.ID+"/overwrites", alice.token, fiber.Map{
		"targetType": "member",
		"targetId":   bob.user.ID,
		"allow":      []string{"send_messages"},
	})
	requireStatus(t, resp, fiber.StatusOK)
	resp = ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/messages", bob.token, fiber.Map{"body": "hi again"})
	requireStatus(t, resp, fiber.StatusCreated)

	// The owner ignores overwrites entirely.
	resp = ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/messages", alice.token, fiber.Map{"body": "owner"})
	requireStatus(t, resp, fiber.StatusCreated)
}
