package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/auth"
	"github.com/aledlb8/Mango-sub000/internal/config"
	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/notify"
	"github.com/aledlb8/Mango-sub000/internal/presence"
	"github.com/aledlb8/Mango-sub000/internal/ratelimit"
	"github.com/aledlb8/Mango-sub000/internal/store"
	"github.com/aledlb8/Mango-sub000/internal/voice"
)

// Deps carries everything the HTTP surface needs. Notify, Voice and Queue
// are optional; nil disables the corresponding feature (notifications are
// skipped, voice routes return 503, health reports only the store).
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Auth     *auth.Service
	Hub      *gateway.Hub
	Presence *presence.Tracker
	Limiter  *ratelimit.Limiter
	Notify   *notify.Enqueuer
	Voice    *voice.Service
	Queue    Pinger
	Log      zerolog.Logger
}

// Register mounts every route under /v1. Rate-limit rules partition the
// surface: login/registration, message posting, typing and reactions each
// get their own budget, everything else shares the default rule.
func Register(app *fiber.App, deps Deps) {
	authH := NewAuthHandler(deps.Auth, deps.Log)
	mfaH := NewMFAHandler(deps.Auth, deps.Log)
	userH := NewUserHandler(deps.Store, deps.Auth, deps.Log)
	friendH := NewFriendHandler(deps.Store, deps.Log)
	serverH := NewServerHandler(deps.Store, deps.Log)
	roleH := NewRoleHandler(deps.Store, deps.Log)
	channelH := NewChannelHandler(deps.Store, deps.Log)
	messageH := NewMessageHandler(deps.Store, deps.Hub, deps.Notify, deps.Log)
	threadH := NewThreadHandler(deps.Store, deps.Hub, deps.Log)
	markerH := NewMarkerHandler(deps.Store, deps.Log)
	typingH := NewTypingHandler(deps.Store, deps.Hub, deps.Config.TypingTTL, deps.Log)
	presenceH := NewPresenceHandler(deps.Store, deps.Presence, deps.Log)
	pushH := NewPushHandler(deps.Store, deps.Log)
	searchH := NewSearchHandler(deps.Store, deps.Log)
	safetyH := NewSafetyHandler(deps.Store, deps.Log)
	moderationH := NewModerationHandler(deps.Store, deps.Log)
	inviteH := NewInviteHandler(deps.Store, deps.Log)
	webhookH := NewWebhookHandler(deps.Store, deps.Hub, deps.Notify, deps.Log)
	botH := NewBotHandler(deps.Store, deps.Log)
	voiceH := NewVoiceHandler(deps.Store, deps.Voice, deps.Log)
	gatewayH := NewGatewayHandler(deps.Hub, deps.Store, deps.Log)
	healthH := NewHealthHandler(deps.Store, deps.Queue)

	requireAuth := auth.RequireAuth(deps.Store)

	v1 := app.Group("/v1")
	v1.Get("/health", healthH.Health)
	v1.Get("/ws", gatewayH.Upgrade)

	// Only login and registration draw from the strict auth budget.
	authLimit := deps.Limiter.Middleware(ratelimit.RuleAuth)
	v1.Post("/auth/register", authH.Register, authLimit)
	v1.Post("/auth/login", authH.Login, authLimit)

	// Webhook execution is unauthenticated but counts as message posting.
	v1.Post("/webhooks/:id/:token", webhookH.Execute, deps.Limiter.Middleware(ratelimit.RuleMessages))

	// Specially budgeted routes carry their rule as route middleware and are
	// registered before the default group so they never touch its budget.
	msgLimit := deps.Limiter.Middleware(ratelimit.RuleMessages)
	typingLimit := deps.Limiter.Middleware(ratelimit.RuleTyping)
	reactionLimit := deps.Limiter.Middleware(ratelimit.RuleReactions)

	v1.Post("/channels/:id/messages", messageH.CreateInChannel, msgLimit, requireAuth)
	v1.Post("/direct-threads/:id/messages", messageH.CreateInThread, msgLimit, requireAuth)

	v1.Post("/channels/:id/typing", typingH.Channel, typingLimit, requireAuth)
	v1.Post("/direct-threads/:id/typing", typingH.Thread, typingLimit, requireAuth)

	v1.Post("/messages/:id/reactions", messageH.AddReaction, reactionLimit, requireAuth)
	v1.Delete("/messages/:id/reactions/:emoji", messageH.RemoveReaction, reactionLimit, requireAuth)

	std := v1.Group("", deps.Limiter.Middleware(ratelimit.RuleDefault), requireAuth)

	std.Post("/auth/logout", authH.Logout)
	std.Post("/auth/mfa/setup", mfaH.Setup)
	std.Post("/auth/mfa/enable", mfaH.Enable)
	std.Post("/auth/mfa/disable", mfaH.Disable)

	std.Get("/me", userH.Me)
	std.Delete("/me", userH.DeleteMe)
	std.Get("/users/search", userH.Search)
	std.Get("/users/:id", userH.Get)

	std.Get("/friends", friendH.List)
	std.Get("/friends/requests", friendH.Requests)
	std.Post("/friends/requests", friendH.CreateRequest)
	std.Post("/friends/requests/:id", friendH.Respond)
	std.Delete("/friends/:id", friendH.Remove)

	std.Post("/servers", serverH.Create)
	std.Get("/servers", serverH.List)
	std.Delete("/servers/:id", serverH.Delete)
	std.Get("/servers/:id/members", serverH.Members)
	std.Delete("/servers/:id/members/@me", serverH.Leave)

	std.Post("/servers/:id/roles", roleH.Create)
	std.Get("/servers/:id/roles", roleH.List)
	std.Patch("/servers/:id/roles/:roleId", roleH.Update)
	std.Delete("/servers/:id/roles/:roleId", roleH.Delete)
	std.Put("/servers/:id/members/:userId/roles/:roleId", roleH.Assign)
	std.Delete("/servers/:id/members/:userId/roles/:roleId", roleH.Unassign)

	std.Post("/servers/:id/channels", channelH.Create)
	std.Get("/servers/:id/channels", channelH.List)
	std.Patch("/channels/:id", channelH.Update)
	std.Delete("/channels/:id", channelH.Delete)
	std.Get("/channels/:id/overwrites", channelH.Overwrites)
	std.Put("/channels/:id/overwrites", channelH.PutOverwrite)
	std.Delete("/channels/:id/overwrites/:overwriteId", channelH.DeleteOverwrite)

	std.Get("/channels/:id/messages", messageH.ListChannel)
	std.Patch("/messages/:id", messageH.Update)
	std.Delete("/messages/:id", messageH.Delete)

	std.Post("/direct-threads", threadH.Create)
	std.Get("/direct-threads", threadH.List)
	std.Get("/direct-threads/:id", threadH.Get)
	std.Get("/direct-threads/:id/messages", messageH.ListThread)
	std.Delete("/direct-threads/:id/participants/@me", threadH.Leave)

	std.Get("/channels/:id/read-marker", markerH.GetChannel)
	std.Put("/channels/:id/read-marker", markerH.SetChannel)
	std.Get("/direct-threads/:id/read-marker", markerH.GetThread)
	std.Put("/direct-threads/:id/read-marker", markerH.SetThread)

	std.Put("/presence", presenceH.Set)
	std.Get("/presence/me", presenceH.Me)
	std.Post("/presence/bulk", presenceH.Bulk)
	std.Get("/presence/:id", presenceH.Get)

	std.Post("/notifications/push-subscriptions", pushH.Create)
	std.Get("/notifications/push-subscriptions", pushH.List)
	std.Delete("/notifications/push-subscriptions/:id", pushH.Delete)

	std.Get("/search", searchH.Search)

	std.Post("/safety/reports", safetyH.CreateReport)
	std.Get("/safety/reports", safetyH.Reports)
	std.Post("/servers/:id/appeals", safetyH.CreateAppeal)
	std.Get("/servers/:id/appeals", safetyH.Appeals)
	std.Post("/appeals/:id", safetyH.Resolve)

	std.Post("/servers/:id/moderation", moderationH.Moderate)
	std.Get("/servers/:id/audit-log", moderationH.AuditLog)
	std.Get("/servers/:id/bans", moderationH.Bans)

	std.Post("/servers/:id/invites", inviteH.Create)
	std.Get("/servers/:id/invites", inviteH.List)
	std.Delete("/servers/:id/invites/:code", inviteH.Delete)
	std.Post("/invites/:code/join", inviteH.Join)

	std.Post("/channels/:id/webhooks", webhookH.Create)
	std.Get("/channels/:id/webhooks", webhookH.List)
	std.Delete("/channels/:id/webhooks/:webhookId", webhookH.Delete)

	std.Post("/servers/:id/bots", botH.Create)
	std.Get("/servers/:id/bots", botH.List)

	std.Post("/channels/:id/voice/:action", voiceH.ChannelAction)
	std.Post("/direct-threads/:id/voice/:action", voiceH.ThreadAction)
}
