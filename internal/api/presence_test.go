package api

import (
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
)

func TestPresenceSet(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")

	resp := ta.do(t, fiber.MethodPut, "/v1/presence", alice.token, fiber.Map{"status": "dnd"})
	requireStatus(t, resp, fiber.StatusOK)
	p := decodeJSON[*model.Presence](t, resp)
	if p.Status != model.PresenceDND || p.UserID != alice.user.ID {
		t.Errorf("presence = %+v, want dnd for %s", p, alice.user.ID)
	}
	if p.ExpiresAt.IsZero() {
		t.Error("dnd heartbeat should carry an expiry")
	}

	// Going offline is explicit and does not expire.
	resp = ta.do(t, fiber.MethodPut, "/v1/presence", alice.token, fiber.Map{"status": "offline"})
	requireStatus(t, resp, fiber.StatusOK)
	if p := decodeJSON[*model.Presence](t, resp); !p.ExpiresAt.IsZero() {
		t.Errorf("offline expiresAt = %v, want none", p.ExpiresAt)
	}
}

func TestPresenceSetInvalid(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")

	resp := ta.do(t, fiber.MethodPut, "/v1/presence", alice.token, fiber.Map{"status": "away"})
	requireStatus(t, resp, fiber.StatusBadRequest)
	body := decodeJSON[httputil.ErrorResponse](t, resp)
	if body.Error != "Status must be one of online, idle, dnd, offline" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestPresenceLookup(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")

	// Never heartbeating reads as offline, for oneself and for others.
	p := decodeJSON[*model.Presence](t, ta.do(t, fiber.MethodGet, "/v1/presence/me", alice.token, nil))
	if p.Status != model.PresenceOffline {
		t.Errorf("status = %q, want offline before any heartbeat", p.Status)
	}

	resp := ta.do(t, fiber.MethodPut, "/v1/presence", alice.token, fiber.Map{"status": "idle"})
	requireStatus(t, resp, fiber.StatusOK)

	p = decodeJSON[*model.Presence](t, ta.do(t, fiber.MethodGet, "/v1/presence/"+alice.user.ID, bob.token, nil))
	if p.Status != model.PresenceIdle {
		t.Errorf("status = %q, want idle", p.Status)
	}

	resp = ta.do(t, fiber.MethodGet, "/v1/presence/usr_unknown", bob.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)
}

func TestPresenceBulk(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")

	resp := ta.do(t, fiber.MethodPost, "/v1/presence/bulk", alice.token, fiber.Map{"userIds": []string{}})
	requireStatus(t, resp, fiber.StatusOK)
	if got := decodeJSON[[]model.Presence](t, resp); len(got) != 0 {
		t.Errorf("presences = %v, want empty", got)
	}

	// Unknown ids are skipped rather than failing the whole lookup.
	resp = ta.do(t, fiber.MethodPost, "/v1/presence/bulk", alice.token, fiber.Map{
		"userIds": []string{alice.user.ID, "usr_unknown", bob.user.ID},
	})
	requireStatus(t, resp, fiber.StatusOK)
	got := decodeJSON[[]model.Presence](t, resp)
	if len(got) != 2 {
		t.Fatalf("presences = %d, want 2", len(got))
	}
	for _, p := range got {
		if p.Status != model.PresenceOffline {
			t.Errorf("status for %s = %q, want offline", p.UserID, p.Status)
		}
	}

	over := make([]string, 101)
	for i := range over {
		over[i] = fmt.Sprintf("usr_%03d", i)
	}
	resp = ta.do(t, fiber.MethodPost, "/v1/presence/bulk", alice.token, fiber.Map{"userIds": over})
	requireStatus(t, resp, fiber.StatusBadRequest)
}
