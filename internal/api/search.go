package api

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// SearchHandler serves the cross-entity search endpoint. Channel and message
// results are filtered by the caller's read permission in the store, so a
// search can never leak conversations the caller cannot open.
type SearchHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(st store.Store, logger zerolog.Logger) *SearchHandler {
	return &SearchHandler{store: st, log: logger}
}

// searchResult is the combined response body. Scopes the caller did not ask
// for stay nil and drop out of the JSON.
type searchResult struct {
	Users    []model.User    `json:"users,omitempty"`
	Channels []model.Channel `json:"channels,omitempty"`
	Messages []model.Message `json:"messages,omitempty"`
}

// Search handles GET /v1/search?q=&scope=&serverId=&limit=. Scope is one of
// all, users, channels, messages, defaulting to all; the three lookups run
// concurrently. Queries shorter than two characters return an empty result
// rather than an error.
func (h *SearchHandler) Search(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	query := strings.TrimSpace(c.Query("q"))
	scope := c.Query("scope", "all")
	switch scope {
	case "all", "users", "channels", "messages":
	default:
		return httputil.Error(c, fiber.StatusBadRequest, "Scope must be one of all, users, channels, messages")
	}
	if len([]rune(query)) < 2 {
		return c.JSON(searchResult{})
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	params := store.SearchParams{
		CallerID: userID,
		Query:    query,
		ServerID: c.Query("serverId"),
		Limit:    limit,
	}

	var result searchResult
	g, ctx := errgroup.WithContext(c)
	if scope == "all" || scope == "users" {
		g.Go(func() error {
			users, err := h.store.SearchUsers(ctx, userID, query)
			result.Users = users
			return err
		})
	}
	if scope == "all" || scope == "channels" {
		g.Go(func() error {
			channels, err := h.store.SearchChannels(ctx, params)
			result.Channels = channels
			return err
		})
	}
	if scope == "all" || scope == "messages" {
		g.Go(func() error {
			messages, err := h.store.SearchMessages(ctx, params)
			result.Messages = messages
			return err
		})
	}
	if err := g.Wait(); err != nil {
		h.log.Error().Err(err).Str("handler", "search").Msg("unhandled search store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
	return c.JSON(result)
}
