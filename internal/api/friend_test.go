package api

import (
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/model"
)

func sendFriendRequest(t *testing.T, ta *testApp, from account, toID string) *model.FriendRequest {
	t.Helper()

	resp := ta.do(t, fiber.MethodPost, "/v1/friends/requests", from.token, fiber.Map{"userId": toID})
	requireStatus(t, resp, fiber.StatusCreated)
	return decodeJSON[*model.FriendRequest](t, resp)
}

func TestFriendRequestLifecycle(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")

	req := sendFriendRequest(t, ta, alice, bob.user.ID)
	if req.Status != model.FriendRequestPending {
		t.Fatalf("status = %q, want %q", req.Status, model.FriendRequestPending)
	}

	// Each side sees the request in the right direction.
	out := decodeJSON[friendRequestsResponse](t, ta.do(t, fiber.MethodGet, "/v1/friends/requests", alice.token, nil))
	if len(out.Outgoing) != 1 || out.Outgoing[0].ID != req.ID {
		t.Fatalf("alice outgoing = %+v, want the pending request", out.Outgoing)
	}
	in := decodeJSON[friendRequestsResponse](t, ta.do(t, fiber.MethodGet, "/v1/friends/requests", bob.token, nil))
	if len(in.Incoming) != 1 || in.Incoming[0].ID != req.ID {
		t.Fatalf("bob incoming = %+v, want the pending request", in.Incoming)
	}

	// Accepting makes the friendship visible from both ends.
	resp := ta.do(t, fiber.MethodPost, "/v1/friends/requests/"+req.ID, bob.token, fiber.Map{"action": "accept"})
	requireStatus(t, resp, fiber.StatusOK)
	settled := decodeJSON[*model.FriendRequest](t, resp)
	if settled.Status != model.FriendRequestAccepted {
		t.Errorf("status = %q, want %q", settled.Status, model.FriendRequestAccepted)
	}

	for _, acct := range []account{alice, bob} {
		friends := decodeJSON[[]model.User](t, ta.do(t, fiber.MethodGet, "/v1/friends", acct.token, nil))
		if len(friends) != 1 {
			t.Fatalf("%s has %d friends, want 1", acct.user.Username, len(friends))
		}
	}

	// Removing the friendship clears both sides.
	resp = ta.do(t, fiber.MethodDelete, "/v1/friends/"+bob.user.ID, alice.token, nil)
	requireStatus(t, resp, fiber.StatusNoContent)
	friends := decodeJSON[[]model.User](t, ta.do(t, fiber.MethodGet, "/v1/friends", bob.token, nil))
	if len(friends) != 0 {
		t.Errorf("bob has %d friends after removal, want 0", len(friends))
	}
}

func TestFriendRequestReject(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")

	req := sendFriendRequest(t, ta, alice, bob.user.ID)

	resp := ta.do(t, fiber.MethodPost, "/v1/friends/requests/"+req.ID, bob.token, fiber.Map{"action": "reject"})
	requireStatus(t, resp, fiber.StatusOK)

	friends := decodeJSON[[]model.User](t, ta.do(t, fiber.MethodGet, "/v1/friends", alice.token, nil))
	if len(friends) != 0 {
		t.Errorf("alice has %d friends after rejection, want 0", len(friends))
	}

	// A rejected request does not block a fresh one.
	sendFriendRequest(t, ta, alice, bob.user.ID)
}

func TestFriendRequestRejections(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")

	req := sendFriendRequest(t, ta, alice, bob.user.ID)

	tests := []struct {
		name   string
		method string
		target string
		token  string
		body   fiber.Map
		want   int
	}{
		{"self request", fiber.MethodPost, "/v1/friends/requests", alice.token, fiber.Map{"userId": alice.user.ID}, fiber.StatusBadRequest},
		{"missing user", fiber.MethodPost, "/v1/friends/requests", alice.token, fiber.Map{}, fiber.StatusBadRequest},
		{"unknown user", fiber.MethodPost, "/v1/friends/requests", alice.token, fiber.Map{"userId": "usr_unknown"}, fiber.StatusNotFound},
		{"duplicate request", fiber.MethodPost, "/v1/friends/requests", alice.token, fiber.Map{"userId": bob.user.ID}, fiber.StatusConflict},
		{"reverse while pending", fiber.MethodPost, "/v1/friends/requests", bob.token, fiber.Map{"userId": alice.user.ID}, fiber.StatusConflict},
		{"bad action", fiber.MethodPost, "/v1/friends/requests/" + req.ID, bob.token, fiber.Map{"action": "maybe"}, fiber.StatusBadRequest},
		{"sender cannot settle", fiber.MethodPost, "/v1/friends/requests/" + req.ID, alice.token, fiber.Map{"action": "accept"}, fiber.StatusNotFound},
		{"unknown request", fiber.MethodPost, "/v1/friends/requests/fr_unknown", bob.token, fiber.Map{"action": "accept"}, fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ta.do(t, tt.method, tt.target, tt.token, tt.body)
			requireStatus(t, resp, tt.want)
		})
	}
}

func TestFriendRequestAfterFriendship(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")

	req := sendFriendRequest(t, ta, alice, bob.user.ID)
	resp := ta.do(t, fiber.MethodPost, "/v1/friends/requests/"+req.ID, bob.token, fiber.Map{"action": "accept"})
	requireStatus(t, resp, fiber.StatusOK)

	resp = ta.do(t, fiber.MethodPost, "/v1/friends/requests", alice.token, fiber.Map{"userId": bob.user.ID})
	requireStatus(t, resp, fiber.StatusConflict)
}
