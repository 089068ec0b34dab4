package api

import (
	"context"
	"io"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/auth"
	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/presence"
	"github.com/aledlb8/Mango-sub000/internal/ratelimit"
	"github.com/aledlb8/Mango-sub000/internal/store"
	"github.com/aledlb8/Mango-sub000/internal/store/memstore"
)

type loggingStore struct {
	store.Store
	t *testing.T
}

func (l *loggingStore) ReadMarker(ctx context.Context, conversationID, userID string) (*model.ReadMarker, error) {
	m, err := l.Store.ReadMarker(ctx, conversationID, userID)
	l.t.Logf("ReadMarker(conv=%q, user=%q) -> err=%v", conversationID, userID, err)
	return m, err
}

func (l *loggingStore) PermissionContext(ctx context.Context, serverID, userID, channelID string) (*store.PermissionContext, error) {
	pc, err := l.Store.PermissionContext(ctx, serverID, userID, channelID)
	l.t.Logf("PermissionContext(server=%q, user=%q, channel=%q) -> err=%v", serverID, userID, channelID, err)
	return pc, err
}

func (l *loggingStore) ChannelByID(ctx context.Context, id string) (*model.Channel, error) {
	ch, err := l.Store.ChannelByID(ctx, id)
	l.t.Logf("ChannelByID(%q) -> err=%v", id, err)
	return ch, err
}

func TestZZDebugMarker(t *testing.T) {
	st := memstore.New()
	t.Cleanup(st.Close)
	ls := &loggingStore{Store: st, t: t}
	cfg := testConfig()
	logger := zerolog.Nop()
	hub := gateway.NewHub(st, cfg, logger)
	app := fiber.New(fiber.Config{ErrorHandler: httputil.ErrorHandler})
	Register(app, Deps{
		Config: cfg, Store: ls, Auth: auth.NewService(st, cfg, logger),
		Hub: hub, Presence: presence.NewTracker(st, hub, cfg.PresenceTTL, logger),
		Limiter: ratelimit.FromConfig(cfg), Log: logger,
	})
	ta := &testApp{app: app, store: st, cfg: cfg, hub: hub}

	alice := ta.register(t, "alice")
	server := ta.createServer(t, alice.token, "Marks")
	channel := ta.createChannel(t, alice.token, server.ID, "general", model.ChannelText)
	t.Logf("created channel=%q server=%q user=%q", channel.ID, server.ID, alice.user.ID)

	resp := ta.do(t, fiber.MethodGet, "/v1/channels/"+channel.ID+"/read-marker", alice.token, nil)
	body, _ := io.ReadAll(resp.Body)
	t.Logf("status=%d body=%s", resp.StatusCode, body)
}
