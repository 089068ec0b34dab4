package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/auth"
	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/presence"
	"github.com/aledlb8/Mango-sub000/internal/ratelimit"
	"github.com/aledlb8/Mango-sub000/internal/store/memstore"
	"github.com/aledlb8/Mango-sub000/internal/voice"
)

// newVoiceApp is newTestApp with a voice upstream behind it.
func newVoiceApp(t *testing.T, upstream http.Handler) *testApp {
	t.Helper()

	st := memstore.New()
	t.Cleanup(st.Close)

	up := httptest.NewServer(upstream)
	t.Cleanup(up.Close)

	cfg := testConfig()
	logger := zerolog.Nop()
	hub := gateway.NewHub(st, cfg, logger)
	client := voice.NewClient(up.URL, "0123456789abcdef0123456789abcdef", time.Second, logger)

	app := fiber.New(fiber.Config{ErrorHandler: httputil.ErrorHandler})
	Register(app, Deps{
		Config:   cfg,
		Store:    st,
		Auth:     auth.NewService(st, cfg, logger),
		Hub:      hub,
		Presence: presence.NewTracker(st, hub, cfg.PresenceTTL, logger),
		Limiter:  ratelimit.FromConfig(cfg),
		Voice:    voice.NewService(client, st, hub, logger),
		Log:      logger,
	})
	return &testApp{app: app, store: st, cfg: cfg, hub: hub}
}

// echoUpstream answers every action with a session snapshot built from the
// forwarded identity headers.
func echoUpstream() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.VoiceSession{
			ID:         "vcs_test",
			TargetKind: r.Header.Get("X-Voice-Target-Kind"),
			TargetID:   r.Header.Get("X-Voice-Target-Id"),
			ServerID:   r.Header.Get("X-Voice-Server-Id"),
			Participants: []model.VoiceParticipant{
				{UserID: r.Header.Get("X-Voice-User-Id")},
			},
		})
	})
}

func TestVoiceUnconfigured(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	srv := ta.createServer(t, alice.token, "Acme")
	ch := ta.createChannel(t, alice.token, srv.ID, "lounge", model.ChannelVoice)

	resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/voice/join", alice.token, nil)
	requireStatus(t, resp, fiber.StatusServiceUnavailable)
	if body := decodeJSON[httputil.ErrorResponse](t, resp); body.Error != "Voice is not configured" {
		t.Errorf("error = %q, want %q", body.Error, "Voice is not configured")
	}
}

func TestVoiceChannelJoin(t *testing.T) {
	t.Parallel()
	ta := newVoiceApp(t, echoUpstream())
	alice := ta.register(t, "alice")
	srv := ta.createServer(t, alice.token, "Acme")
	ch := ta.createChannel(t, alice.token, srv.ID, "lounge", model.ChannelVoice)

	resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/voice/join", alice.token, fiber.Map{"muted": true})
	requireStatus(t, resp, fiber.StatusOK)
	session := decodeJSON[*model.VoiceSession](t, resp)
	if session.TargetKind != voice.TargetChannel || session.TargetID != ch.ID || session.ServerID != srv.ID {
		t.Errorf("session = %+v, want channel target %s in %s", session, ch.ID, srv.ID)
	}
	if len(session.Participants) != 1 || session.Participants[0].UserID != alice.user.ID {
		t.Errorf("participants = %+v, want just alice", session.Participants)
	}
}

func TestVoiceChannelValidation(t *testing.T) {
	t.Parallel()
	ta := newVoiceApp(t, echoUpstream())
	alice := ta.register(t, "alice")
	mallory := ta.register(t, "mallory")
	srv := ta.createServer(t, alice.token, "Acme")
	lounge := ta.createChannel(t, alice.token, srv.ID, "lounge", model.ChannelVoice)
	general := ta.createChannel(t, alice.token, srv.ID, "general", model.ChannelText)

	resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+lounge.ID+"/voice/mute-all", alice.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)

	resp = ta.do(t, fiber.MethodPost, "/v1/channels/"+general.ID+"/voice/join", alice.token, nil)
	requireStatus(t, resp, fiber.StatusBadRequest)
	if body := decodeJSON[httputil.ErrorResponse](t, resp); body.Error != "Channel does not support voice" {
		t.Errorf("error = %q, want %q", body.Error, "Channel does not support voice")
	}

	resp = ta.do(t, fiber.MethodPost, "/v1/channels/"+lounge.ID+"/voice/join", mallory.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)

	resp = ta.do(t, fiber.MethodPost, "/v1/channels/chn_unknown/voice/join", alice.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)
}

func TestVoiceThreadJoin(t *testing.T) {
	t.Parallel()
	ta := newVoiceApp(t, echoUpstream())
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	mallory := ta.register(t, "mallory")
	thread := createThread(t, ta, alice.token, bob.user.ID)

	resp := ta.do(t, fiber.MethodPost, "/v1/direct-threads/"+thread.ID+"/voice/join", bob.token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	session := decodeJSON[*model.VoiceSession](t, resp)
	if session.TargetKind != voice.TargetThread || session.TargetID != thread.ID {
		t.Errorf("session = %+v, want thread target %s", session, thread.ID)
	}

	// Non-participants cannot tell the thread exists.
	resp = ta.do(t, fiber.MethodPost, "/v1/direct-threads/"+thread.ID+"/voice/join", mallory.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)
}

func TestVoiceUpstreamFailures(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name       string
		upstream   int
		wantStatus int
		wantError  string
	}{
		{"client errors are relayed", fiber.StatusConflict, fiber.StatusConflict, "Voice service rejected the request"},
		{"server errors read as unavailable", fiber.StatusInternalServerError, fiber.StatusServiceUnavailable, "Voice service is unavailable"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ta := newVoiceApp(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.upstream)
			}))
			alice := ta.register(t, "alice")
			srv := ta.createServer(t, alice.token, "Acme")
			ch := ta.createChannel(t, alice.token, srv.ID, "lounge", model.ChannelVoice)

			resp := ta.do(t, fiber.MethodPost, "/v1/channels/"+ch.ID+"/voice/join", alice.token, nil)
			requireStatus(t, resp, tc.wantStatus)
			if body := decodeJSON[httputil.ErrorResponse](t, resp); body.Error != tc.wantError {
				t.Errorf("error = %q, want %q", body.Error, tc.wantError)
			}
		})
	}
}
