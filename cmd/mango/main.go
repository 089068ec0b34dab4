package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aledlb8/Mango-sub000/internal/api"
	"github.com/aledlb8/Mango-sub000/internal/auth"
	"github.com/aledlb8/Mango-sub000/internal/config"
	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/notify"
	"github.com/aledlb8/Mango-sub000/internal/presence"
	"github.com/aledlb8/Mango-sub000/internal/ratelimit"
	"github.com/aledlb8/Mango-sub000/internal/store"
	"github.com/aledlb8/Mango-sub000/internal/store/memstore"
	"github.com/aledlb8/Mango-sub000/internal/store/pgstore"
	"github.com/aledlb8/Mango-sub000/internal/voice"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Gateway stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().Str("env", cfg.ServerEnv).Str("store", cfg.StoreBackend).Msg("Starting Mango gateway")

	if cfg.CORSAllowOrigins == "*" {
		log.Warn().Msg("CORS_ALLOW_ORIGINS is a wildcard \"*\". Set an explicit origin for production deployments.")
	}

	ctx := context.Background()

	var st store.Store
	switch cfg.StoreBackend {
	case config.BackendMemory:
		st = memstore.New()
	case config.BackendPostgres:
		pool, err := pgstore.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		log.Info().Msg("PostgreSQL connected")

		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			pool.Close()
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info().Msg("Database migrations complete")
		st = pgstore.New(pool, log.Logger)
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	defer st.Close()

	// The Redis queue only carries push notification jobs; without it the
	// gateway runs fully, just without push delivery.
	var enqueuer *notify.Enqueuer
	var queue api.Pinger
	if cfg.RedisConfigured() {
		rdb, err := notify.Connect(ctx, cfg.RedisURL, 5*time.Second)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		enqueuer = notify.NewEnqueuer(st, rdb, cfg.PublicBaseURL, log.Logger)
		queue = redisPinger{client: rdb}
		log.Info().Msg("Notification queue connected")
	}

	hub := gateway.NewHub(st, cfg, log.Logger)

	tracker := presence.NewTracker(st, hub, cfg.PresenceTTL, log.Logger)
	trackerCtx, stopTracker := context.WithCancel(ctx)
	defer stopTracker()
	go tracker.Run(trackerCtx)

	var voiceSvc *voice.Service
	if cfg.VoiceConfigured() {
		client := voice.NewClient(cfg.VoiceUpstreamURL, cfg.VoiceServiceSecret, cfg.VoiceTimeout, log.Logger)
		voiceSvc = voice.NewService(client, st, hub, log.Logger)
		log.Info().Str("upstream", cfg.VoiceUpstreamURL).Msg("Voice proxy configured")
	}

	app := fiber.New(fiber.Config{
		AppName:      "Mango",
		ErrorHandler: httputil.ErrorHandler,
	})

	app.Use(requestid.New())
	var skipPaths []string
	if !cfg.LogHealthRequests {
		skipPaths = append(skipPaths, "/v1/health")
	}
	app.Use(httputil.RequestLogger(log.Logger, skipPaths...))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  splitOrigins(cfg.CORSAllowOrigins),
		AllowMethods:  []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete, fiber.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        86400,
	}))

	api.Register(app, api.Deps{
		Config:   cfg,
		Store:    st,
		Auth:     auth.NewService(st, cfg, log.Logger),
		Hub:      hub,
		Presence: tracker,
		Limiter:  ratelimit.FromConfig(cfg),
		Notify:   enqueuer,
		Voice:    voiceSvc,
		Queue:    queue,
		Log:      log.Logger,
	})

	// Shutdown order matters: gateway sockets close first so the listener
	// is not held open by long-lived websocket handlers.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("Shutting down gateway")
		stopTracker()
		hub.Shutdown()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("Gateway listening")
	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// splitOrigins turns the comma-separated CORS_ALLOW_ORIGINS value into the
// slice fiber's middleware expects, dropping empty entries.
func splitOrigins(raw string) []string {
	var out []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// redisPinger adapts *redis.Client to the api.Pinger interface.
type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }
