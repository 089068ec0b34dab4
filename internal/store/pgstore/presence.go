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

// SetPresence records a heartbeat. Online, idle and dnd expire after ttl;
// offline sticks until the next heartbeat.
func (s *Store) SetPresence(ctx context.Context, userID string, status model.PresenceStatus, ttl time.Duration) (*model.Presence, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM users WHERE id = $1`, userID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}

	p := &model.Presence{
		UserID:     userID,
		Status:     status,
		LastSeenAt: model.Now(),
	}
	if status != model.PresenceOffline {
		p.ExpiresAt = model.At(ident.Now().Add(ttl))
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO presences (user_id, status, last_seen_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id)
		 DO UPDATE SET status = EXCLUDED.status, last_seen_at = EXCLUDED.last_seen_at, expires_at = EXCLUDED.expires_at`,
		p.UserID, string(p.Status), p.LastSeenAt.Time, nullTime(p.ExpiresAt),
	); err != nil {
		return nil, fmt.Errorf("upsert presence: %w", err)
	}
	return p, nil
}

// PresenceByUser reads one user's presence, flipping an overdue record to
// offline in place first. A user with no record reads as offline.
func (s *Store) PresenceByUser(ctx context.Context, userID string) (*model.Presence, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM users WHERE id = $1`, userID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`UPDATE presences SET status = 'offline', expires_at = NULL
		 WHERE user_id = $1 AND status <> 'offline' AND expires_at IS NOT NULL AND expires_at <= $2`,
		userID, ident.Now()); err != nil {
		return nil, fmt.Errorf("expire presence: %w", err)
	}

	p := model.Presence{UserID: userID}
	var lastSeen, expires *time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT status, last_seen_at, expires_at FROM presences WHERE user_id = $1`, userID,
	).Scan(&p.Status, &lastSeen, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.Presence{UserID: userID, Status: model.PresenceOffline}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query presence: %w", err)
	}
	p.LastSeenAt = asTimestamp(lastSeen)
	p.ExpiresAt = asTimestamp(expires)
	return &p, nil
}

// PresenceBulk reads presences in the order requested, skipping unknown
// users. Users without a record come back offline.
func (s *Store) PresenceBulk(ctx context.Context, userIDs []string) ([]model.Presence, error) {
	if len(userIDs) == 0 {
		return []model.Presence{}, nil
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE presences SET status = 'offline', expires_at = NULL
		 WHERE user_id = ANY($1) AND status <> 'offline' AND expires_at IS NOT NULL AND expires_at <= $2`,
		userIDs, ident.Now()); err != nil {
		return nil, fmt.Errorf("expire presences: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT u.id, COALESCE(p.status, 'offline'), p.last_seen_at, p.expires_at
		 FROM unnest($1::text[]) WITH ORDINALITY AS ids (user_id, ord)
		 JOIN users u ON u.id = ids.user_id
		 LEFT JOIN presences p ON p.user_id = u.id
		 ORDER BY ids.ord`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("query presences: %w", err)
	}
	defer rows.Close()

	out := make([]model.Presence, 0, len(userIDs))
	for rows.Next() {
		var p model.Presence
		var lastSeen, expires *time.Time
		if err := rows.Scan(&p.UserID, &p.Status, &lastSeen, &expires); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		p.LastSeenAt = asTimestamp(lastSeen)
		p.ExpiresAt = asTimestamp(expires)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SweepPresences flips every overdue record to offline and returns the ones
// it flipped so the caller can fan the changes out.
func (s *Store) SweepPresences(ctx context.Context) ([]model.Presence, error) {
	rows, err := s.pool.Query(ctx,
		`WITH flipped AS (
		     UPDATE presences SET status = 'offline', expires_at = NULL
		     WHERE status <> 'offline' AND expires_at IS NOT NULL AND expires_at <= $1
		     RETURNING user_id, last_seen_at
		 )
		 SELECT user_id, last_seen_at FROM flipped ORDER BY user_id`, ident.Now())
	if err != nil {
		return nil, fmt.Errorf("sweep presences: %w", err)
	}
	defer rows.Close()

	out := make([]model.Presence, 0)
	for rows.Next() {
		p := model.Presence{Status: model.PresenceOffline}
		var lastSeen time.Time
		if err := rows.Scan(&p.UserID, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan swept presence: %w", err)
		}
		p.LastSeenAt = model.At(lastSeen)
		out = append(out, p)
	}
	return out, rows.Err()
}
