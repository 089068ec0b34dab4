package pgstore

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateWebhook mints a webhook for the channel. The returned Token is the
// plaintext secret, shown exactly once; only its hash is stored.
func (s *Store) CreateWebhook(ctx context.Context, channelID, name, createdBy string) (*model.Webhook, error) {
	var serverID string
	err := s.pool.QueryRow(ctx, `SELECT server_id FROM channels WHERE id = $1`, channelID).Scan(&serverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check channel: %w", err)
	}

	token := ident.NewSecret()
	wh := &model.Webhook{
		ID:        ident.New(ident.Webhook),
		ChannelID: channelID,
		ServerID:  serverID,
		Name:      name,
		Token:     token,
		CreatedBy: createdBy,
		CreatedAt: model.Now(),
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO webhooks (id, channel_id, server_id, name, token_hash, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		wh.ID, wh.ChannelID, wh.ServerID, wh.Name, hashToken(token), wh.CreatedBy, wh.CreatedAt.Time,
	); err != nil {
		return nil, fmt.Errorf("insert webhook: %w", err)
	}
	return wh, nil
}

func (s *Store) Webhooks(ctx context.Context, channelID string) ([]model.Webhook, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM channels WHERE id = $1`, channelID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check channel: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, channel_id, server_id, name, created_by, created_at
		 FROM webhooks WHERE channel_id = $1 ORDER BY created_at, id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	defer rows.Close()

	out := make([]model.Webhook, 0)
	for rows.Next() {
		var wh model.Webhook
		var created time.Time
		if err := rows.Scan(&wh.ID, &wh.ChannelID, &wh.ServerID, &wh.Name, &wh.CreatedBy, &created); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		wh.CreatedAt = model.At(created)
		out = append(out, wh)
	}
	return out, rows.Err()
}

// WebhookByToken resolves a webhook for execution. The presented token is
// hashed and compared in constant time; any mismatch reads as not found.
func (s *Store) WebhookByToken(ctx context.Context, webhookID, token string) (*model.Webhook, error) {
	var wh model.Webhook
	var storedHash string
	var created time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT id, channel_id, server_id, name, token_hash, created_by, created_at
		 FROM webhooks WHERE id = $1`, webhookID,
	).Scan(&wh.ID, &wh.ChannelID, &wh.ServerID, &wh.Name, &storedHash, &wh.CreatedBy, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query webhook: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(storedHash), []byte(hashToken(token))) != 1 {
		return nil, store.ErrNotFound
	}
	wh.CreatedAt = model.At(created)
	return &wh, nil
}

func (s *Store) DeleteWebhook(ctx context.Context, channelID, webhookID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM webhooks WHERE id = $1 AND channel_id = $2`, webhookID, channelID)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateBot creates a flagged bot account, joins it to the server and mints
// its long-lived session token, all atomically.
func (s *Store) CreateBot(ctx context.Context, params store.CreateBotParams) (*model.User, string, error) {
	var bot *model.User
	var token string
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1`, params.ServerID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check server: %w", err)
		}

		bot, err = createUser(ctx, tx, store.CreateUserParams{
			Email:       strings.ToLower(params.Username) + "@bots.mango.invalid",
			Username:    params.Username,
			DisplayName: params.DisplayName,
			Bot:         true,
		})
		if err != nil {
			return err
		}
		if err := addMemberTx(ctx, tx, params.ServerID, bot.ID); err != nil {
			return err
		}
		sess, err := createSession(ctx, tx, bot.ID)
		if err != nil {
			return err
		}
		token = sess.Token
		return appendAuditTx(ctx, tx, params.ServerID, params.CreatorID, bot.ID,
			"bot.install", "", map[string]any{"username": bot.Username})
	})
	if err != nil {
		return nil, "", err
	}
	return bot, token, nil
}

// Bots lists the server's bot members sorted by username.
func (s *Store) Bots(ctx context.Context, serverID string) ([]model.User, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1`, serverID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check server: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.email, u.username, u.display_name, u.bot, u.password_hash, u.totp_secret, u.totp_enabled, u.created_at
		 FROM server_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.server_id = $1 AND u.bot
		 ORDER BY u.username COLLATE "C", u.id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("query bots: %w", err)
	}
	defer rows.Close()

	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}
