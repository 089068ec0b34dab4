package memstore

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateWebhook mints a webhook for the channel. The returned Token is the
// plaintext secret, shown exactly once; only its hash is retained.
func (s *Store) CreateWebhook(ctx context.Context, channelID, name, createdBy string) (*model.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return nil, store.ErrNotFound
	}

	token := ident.NewSecret()
	wh := &model.Webhook{
		ID:        ident.New(ident.Webhook),
		ChannelID: channelID,
		ServerID:  ch.ServerID,
		Name:      name,
		Token:     hashToken(token),
		CreatedBy: createdBy,
		CreatedAt: model.Now(),
	}
	s.webhooks[wh.ID] = wh

	cp := *wh
	cp.Token = token
	return &cp, nil
}

func (s *Store) Webhooks(ctx context.Context, channelID string) ([]model.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[channelID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]model.Webhook, 0)
	for _, wh := range s.webhooks {
		if wh.ChannelID == channelID {
			cp := *wh
			cp.Token = ""
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.Before(out[j].CreatedAt.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// WebhookByToken resolves a webhook for execution. The presented token is
// hashed and compared in constant time; any mismatch reads as not found.
func (s *Store) WebhookByToken(ctx context.Context, webhookID, token string) (*model.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wh, ok := s.webhooks[webhookID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(wh.Token), []byte(hashToken(token))) != 1 {
		return nil, store.ErrNotFound
	}
	cp := *wh
	cp.Token = ""
	return &cp, nil
}

func (s *Store) DeleteWebhook(ctx context.Context, channelID, webhookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wh, ok := s.webhooks[webhookID]
	if !ok || wh.ChannelID != channelID {
		return store.ErrNotFound
	}
	delete(s.webhooks, webhookID)
	return nil
}

// CreateBot creates a flagged bot account, joins it to the server and mints
// its long-lived session token, all atomically.
func (s *Store) CreateBot(ctx context.Context, params store.CreateBotParams) (*model.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[params.ServerID]; !ok {
		return nil, "", store.ErrNotFound
	}

	bot, err := s.createUserLocked(store.CreateUserParams{
		Email:       strings.ToLower(params.Username) + "@bots.mango.invalid",
		Username:    params.Username,
		DisplayName: params.DisplayName,
		Bot:         true,
	})
	if err != nil {
		return nil, "", err
	}
	if err := s.addMemberLocked(params.ServerID, bot.ID); err != nil {
		return nil, "", err
	}
	sess, err := s.createSessionLocked(bot.ID)
	if err != nil {
		return nil, "", err
	}
	s.appendAuditLocked(params.ServerID, params.CreatorID, bot.ID, "bot.install", "", map[string]any{"username": bot.Username})
	return bot, sess.Token, nil
}

// Bots lists the server's bot members sorted by username.
func (s *Store) Bots(ctx context.Context, serverID string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]model.User, 0)
	for userID := range s.members[serverID] {
		if u := s.users[userID]; u != nil && u.Bot {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
