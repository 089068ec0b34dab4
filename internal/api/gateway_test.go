package api

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
)

func TestGatewayUpgradeRequired(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")

	// A plain GET without upgrade headers is refused before auth runs.
	req := httptest.NewRequest(fiber.MethodGet, "/v1/ws?token="+alice.token, nil)
	resp, err := ta.app.Test(req, testTimeout)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	requireStatus(t, resp, fiber.StatusUpgradeRequired)
}

func TestGatewayUpgradeAuth(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)

	for _, tc := range []struct {
		name      string
		target    string
		auth      string
		wantError string
	}{
		{"missing token", "/v1/ws", "", "Missing authentication token"},
		{"bad query token", "/v1/ws?token=bogus", "", "Invalid or expired session"},
		{"bad header token", "/v1/ws", "Bearer bogus", "Invalid or expired session"},
	} {
		req := httptest.NewRequest(fiber.MethodGet, tc.target, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		resp, err := ta.app.Test(req, testTimeout)
		if err != nil {
			t.Fatalf("%s: request: %v", tc.name, err)
		}
		requireStatus(t, resp, fiber.StatusUnauthorized)
		if body := decodeJSON[httputil.ErrorResponse](t, resp); body.Error != tc.wantError {
			t.Errorf("%s: error = %q, want %q", tc.name, body.Error, tc.wantError)
		}
	}
}
