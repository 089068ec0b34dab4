package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// CreatePushSubscription registers a push endpoint. Re-registering an
// endpoint the user already holds refreshes its keys under the same id.
func (s *Store) CreatePushSubscription(ctx context.Context, params store.CreatePushParams) (*model.PushSubscription, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM users WHERE id = $1`, params.UserID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}

	now := model.Now()
	sub := model.PushSubscription{
		ID:        ident.New(ident.Push),
		UserID:    params.UserID,
		Endpoint:  params.Endpoint,
		P256dh:    params.P256dh,
		Auth:      params.Auth,
		UserAgent: params.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var created, updated time.Time
	// DO UPDATE keeps the id and creation time of the existing registration.
	err = s.pool.QueryRow(ctx,
		`INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth, user_agent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (user_id, endpoint)
		 DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth,
		               user_agent = EXCLUDED.user_agent, updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at, updated_at`,
		sub.ID, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, sub.UserAgent, now.Time,
	).Scan(&sub.ID, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("upsert push subscription: %w", err)
	}
	sub.CreatedAt = model.At(created)
	sub.UpdatedAt = model.At(updated)
	return &sub, nil
}

func (s *Store) PushSubscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth, user_agent, created_at, updated_at
		 FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query push subscriptions: %w", err)
	}
	defer rows.Close()

	out := make([]model.PushSubscription, 0)
	for rows.Next() {
		var sub model.PushSubscription
		var created, updated time.Time
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth,
			&sub.UserAgent, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		sub.CreatedAt = model.At(created)
		sub.UpdatedAt = model.At(updated)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// DeletePushSubscription removes one of the user's subscriptions. Deleting a
// subscription that is absent or belongs to someone else is a no-op.
func (s *Store) DeletePushSubscription(ctx context.Context, userID, id string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE id = $1 AND user_id = $2`, id, userID); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}
