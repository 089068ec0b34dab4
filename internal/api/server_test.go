package api

import (
	"context"
	"errors"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func TestServerCreate(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")

	srv := ta.createServer(t, alice.token, "Gaming Lounge")
	if srv.OwnerID != alice.user.ID {
		t.Errorf("ownerId = %q, want %q", srv.OwnerID, alice.user.ID)
	}

	// Creation seeds the default role, the Owner role and the owner's
	// membership in one step.
	roles := decodeJSON[[]model.Role](t, ta.do(t, fiber.MethodGet, "/v1/servers/"+srv.ID+"/roles", alice.token, nil))
	var defaults, owners int
	for _, r := range roles {
		switch {
		case r.IsDefault:
			defaults++
		case r.Name == "Owner":
			owners++
		}
	}
	if defaults != 1 || owners != 1 {
		t.Errorf("seeded roles = %+v, want one default and one Owner", roles)
	}

	members := decodeJSON[[]model.Member](t, ta.do(t, fiber.MethodGet, "/v1/servers/"+srv.ID+"/members", alice.token, nil))
	if len(members) != 1 || members[0].UserID != alice.user.ID {
		t.Errorf("members = %+v, want just the owner", members)
	}

	resp := ta.do(t, fiber.MethodPost, "/v1/servers", alice.token, fiber.Map{"name": "x"})
	requireStatus(t, resp, fiber.StatusBadRequest)
}

func TestServerList(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")

	srv := ta.createServer(t, alice.token, "Alpha")
	ta.createServer(t, bob.token, "Beta")
	ta.addMember(t, srv.ID, bob.user.ID)

	servers := decodeJSON[[]model.Server](t, ta.do(t, fiber.MethodGet, "/v1/servers", bob.token, nil))
	if len(servers) != 2 {
		t.Fatalf("bob sees %d servers, want 2", len(servers))
	}

	servers = decodeJSON[[]model.Server](t, ta.do(t, fiber.MethodGet, "/v1/servers", alice.token, nil))
	if len(servers) != 1 {
		t.Fatalf("alice sees %d servers, want 1", len(servers))
	}
}

func TestServerMembersVisibility(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	mallory := ta.register(t, "mallory")

	srv := ta.createServer(t, alice.token, "Private")

	// Non-members cannot tell the server exists.
	resp := ta.do(t, fiber.MethodGet, "/v1/servers/"+srv.ID+"/members", mallory.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)
}

func TestServerLeave(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")

	srv := ta.createServer(t, alice.token, "Alpha")
	ta.addMember(t, srv.ID, bob.user.ID)

	// The owner cannot leave their own server.
	resp := ta.do(t, fiber.MethodDelete, "/v1/servers/"+srv.ID+"/members/@me", alice.token, nil)
	requireStatus(t, resp, fiber.StatusForbidden)

	resp = ta.do(t, fiber.MethodDelete, "/v1/servers/"+srv.ID+"/members/@me", bob.token, nil)
	requireStatus(t, resp, fiber.StatusNoContent)

	// Once out, the server is hidden again.
	resp = ta.do(t, fiber.MethodGet, "/v1/servers/"+srv.ID+"/members", bob.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)
}

func TestServerDelete(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")

	srv := ta.createServer(t, alice.token, "Alpha")
	ta.addMember(t, srv.ID, bob.user.ID)
	ch := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)
	msg := ta.createMessage(t, alice.token, ch.ID, "hello")

	// Members without ownership cannot delete.
	resp := ta.do(t, fiber.MethodDelete, "/v1/servers/"+srv.ID, bob.token, nil)
	requireStatus(t, resp, fiber.StatusForbidden)

	resp = ta.do(t, fiber.MethodDelete, "/v1/servers/"+srv.ID, alice.token, nil)
	requireStatus(t, resp, fiber.StatusNoContent)

	// The cascade took the channel and its messages with it.
	ctx := context.Background()
	if _, err := ta.store.ChannelByID(ctx, ch.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ChannelByID after delete error = %v, want ErrNotFound", err)
	}
	if _, err := ta.store.MessageByID(ctx, msg.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("MessageByID after delete error = %v, want ErrNotFound", err)
	}
}
