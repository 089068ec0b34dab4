package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/auth"
	"github.com/aledlb8/Mango-sub000/internal/config"
	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/presence"
	"github.com/aledlb8/Mango-sub000/internal/ratelimit"
	"github.com/aledlb8/Mango-sub000/internal/store"
	"github.com/aledlb8/Mango-sub000/internal/store/memstore"
)

// testTimeout widens the app.Test deadline so argon2 hashing under the race
// detector does not trip a spurious i/o timeout.
var testTimeout = fiber.TestConfig{Timeout: 30 * time.Second}

// testConfig returns settings sized for tests: one argon2id iteration and
// rate budgets no suite can exhaust by accident.
func testConfig() *config.Config {
	return &config.Config{
		Argon2Memory:      65536,
		Argon2Iterations:  1,
		Argon2Parallelism: 1,
		Argon2SaltLength:  16,
		Argon2KeyLength:   32,

		PresenceTTL:           2 * time.Minute,
		TypingTTL:             6 * time.Second,
		GatewaySendBuffer:     16,
		GatewayMaxConnections: 100,

		RateLimitAuthCount:              1000,
		RateLimitAuthWindowSeconds:      60,
		RateLimitMessagesCount:          1000,
		RateLimitMessagesWindowSeconds:  10,
		RateLimitTypingCount:            1000,
		RateLimitTypingWindowSeconds:    10,
		RateLimitReactionsCount:         1000,
		RateLimitReactionsWindowSeconds: 10,
		RateLimitAPIRequests:            10000,
		RateLimitAPIWindowSeconds:       60,
	}
}

// testApp is one full route surface over a fresh in-memory store. Notify,
// Voice and Queue stay nil, matching a gateway with neither Redis nor a
// voice upstream configured.
type testApp struct {
	app   *fiber.App
	store store.Store
	cfg   *config.Config
	hub   *gateway.Hub
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	st := memstore.New()
	t.Cleanup(st.Close)

	cfg := testConfig()
	logger := zerolog.Nop()
	hub := gateway.NewHub(st, cfg, logger)

	app := fiber.New(fiber.Config{ErrorHandler: httputil.ErrorHandler})
	Register(app, Deps{
		Config:   cfg,
		Store:    st,
		Auth:     auth.NewService(st, cfg, logger),
		Hub:      hub,
		Presence: presence.NewTracker(st, hub, cfg.PresenceTTL, logger),
		Limiter:  ratelimit.FromConfig(cfg),
		Log:      logger,
	})
	return &testApp{app: app, store: st, cfg: cfg, hub: hub}
}

// do performs one request. A non-nil body is sent as JSON; a non-empty
// token rides in the Authorization header.
func (ta *testApp) do(t *testing.T, method, target, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ta.app.Test(req, testTimeout)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	return resp
}

// doRaw sends a raw payload verbatim, for malformed-body cases.
func (ta *testApp) doRaw(t *testing.T, method, target, token, raw string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ta.app.Test(req, testTimeout)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	return resp
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// account pairs a registered user with a live session token.
type account struct {
	user  *model.User
	token string
}

// register provisions an account through the real endpoint so the token is
// a working session.
func (ta *testApp) register(t *testing.T, username string) account {
	t.Helper()

	resp := ta.do(t, fiber.MethodPost, "/v1/auth/register", "", fiber.Map{
		"email":       username + "@example.com",
		"username":    username,
		"displayName": "User " + username,
		"password":    "password123",
	})
	requireStatus(t, resp, fiber.StatusCreated)

	res := decodeJSON[authResponse](t, resp)
	return account{user: res.User, token: res.Token}
}

func (ta *testApp) createServer(t *testing.T, token, name string) *model.Server {
	t.Helper()

	resp := ta.do(t, fiber.MethodPost, "/v1/servers", token, fiber.Map{"name": name})
	requireStatus(t, resp, fiber.StatusCreated)
	return decodeJSON[*model.Server](t, resp)
}

func (ta *testApp) createChannel(t *testing.T, token, serverID, name string, channelType model.ChannelType) *model.Channel {
	t.Helper()

	resp := ta.do(t, fiber.MethodPost, "/v1/servers/"+serverID+"/channels", token, fiber.Map{
		"name": name,
		"type": string(channelType),
	})
	requireStatus(t, resp, fiber.StatusCreated)
	return decodeJSON[*model.Channel](t, resp)
}

func (ta *testApp) createMessage(t *testing.T, token, channelID, body string) *model.Message {
	t.Helper()

	resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+channelID+"/messages", token, fiber.Map{"body": body})
	requireStatus(t, resp, fiber.StatusCreated)
	return decodeJSON[*model.Message](t, resp)
}

// addMember joins a user to a server directly through the store; invite
// mechanics get their own tests.
func (ta *testApp) addMember(t *testing.T, serverID, userID string) {
	t.Helper()

	if _, err := ta.store.AddMember(context.Background(), serverID, userID); err != nil {
		t.Fatalf("AddMember(%q, %q) error = %v", serverID, userID, err)
	}
}

// fakeAuth injects the identity the way auth.RequireAuth would, for tests
// that mount a handler on a bare app. A nil user leaves the request
// anonymous so handlers answer 401.
func fakeAuth(u *model.User) fiber.Handler {
	return func(c fiber.Ctx) error {
		if u != nil {
			c.Locals("userID", u.ID)
			c.Locals("user", u)
		}
		return c.Next()
	}
}
