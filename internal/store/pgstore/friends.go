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

const requestColumns = `id, from_user_id, to_user_id, status, created_at, updated_at`

func scanFriendRequest(row pgx.Row) (*model.FriendRequest, error) {
	var req model.FriendRequest
	var created, updated time.Time
	if err := row.Scan(&req.ID, &req.FromUserID, &req.ToUserID, &req.Status, &created, &updated); err != nil {
		return nil, fmt.Errorf("scan friend request: %w", err)
	}
	req.CreatedAt = model.At(created)
	req.UpdatedAt = model.At(updated)
	return &req, nil
}

func (s *Store) Friends(ctx context.Context, userID string) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.email, u.username, u.display_name, u.bot, u.password_hash, u.totp_secret, u.totp_enabled, u.created_at
		 FROM friendships f
		 JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = $1
		 ORDER BY lower(u.username) COLLATE "C", u.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
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

// RemoveFriend deletes both directions of the friendship and any pending
// request between the pair. Removing a non-friend is a no-op.
func (s *Store) RemoveFriend(ctx context.Context, userID, friendID string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM friendships
			 WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`,
			userID, friendID); err != nil {
			return fmt.Errorf("delete friendship: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM friend_requests
			 WHERE status = 'pending'
			   AND ((from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1))`,
			userID, friendID); err != nil {
			return fmt.Errorf("delete pending requests: %w", err)
		}
		return nil
	})
}

func (s *Store) CreateFriendRequest(ctx context.Context, fromUserID, toUserID string) (*model.FriendRequest, error) {
	var out *model.FriendRequest
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT TRUE FROM users WHERE id = $1`, toUserID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check recipient: %w", err)
		}

		var friends bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)`,
			fromUserID, toUserID).Scan(&friends); err != nil {
			return fmt.Errorf("check friendship: %w", err)
		}
		if friends {
			return store.ErrAlreadyFriends
		}

		var pending bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM friend_requests
			  WHERE status = 'pending'
			    AND ((from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1)))`,
			fromUserID, toUserID).Scan(&pending); err != nil {
			return fmt.Errorf("check pending: %w", err)
		}
		if pending {
			return store.ErrRequestPending
		}

		now := model.Now()
		req := &model.FriendRequest{
			ID:         ident.New(ident.FriendRequest),
			FromUserID: fromUserID,
			ToUserID:   toUserID,
			Status:     model.FriendRequestPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO friend_requests (id, from_user_id, to_user_id, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $5)`,
			req.ID, req.FromUserID, req.ToUserID, string(req.Status), now.Time); err != nil {
			return fmt.Errorf("insert friend request: %w", err)
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FriendRequests(ctx context.Context, userID string) (incoming, outgoing []model.FriendRequest, err error) {
	collect := func(query string) ([]model.FriendRequest, error) {
		rows, err := s.pool.Query(ctx, query, userID)
		if err != nil {
			return nil, fmt.Errorf("query friend requests: %w", err)
		}
		defer rows.Close()
		out := make([]model.FriendRequest, 0)
		for rows.Next() {
			req, err := scanFriendRequest(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, *req)
		}
		return out, rows.Err()
	}

	incoming, err = collect(`SELECT ` + requestColumns + ` FROM friend_requests
		WHERE to_user_id = $1 AND status = 'pending' ORDER BY created_at, id`)
	if err != nil {
		return nil, nil, err
	}
	outgoing, err = collect(`SELECT ` + requestColumns + ` FROM friend_requests
		WHERE from_user_id = $1 AND status = 'pending' ORDER BY created_at, id`)
	if err != nil {
		return nil, nil, err
	}
	return incoming, outgoing, nil
}

// RespondFriendRequest closes a pending request. Only the recipient of a
// still-pending request may respond; anything else reads as not found.
// Accepting inserts the symmetric friendship.
func (s *Store) RespondFriendRequest(ctx context.Context, requestID, responderID string, accept bool) (*model.FriendRequest, error) {
	var out *model.FriendRequest
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		req, err := scanFriendRequest(tx.QueryRow(ctx,
			`SELECT `+requestColumns+` FROM friend_requests WHERE id = $1 FOR UPDATE`, requestID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("lock friend request: %w", err)
		}
		if req.ToUserID != responderID || req.Status != model.FriendRequestPending {
			return store.ErrNotFound
		}

		req.UpdatedAt = model.Now()
		if accept {
			req.Status = model.FriendRequestAccepted
		} else {
			req.Status = model.FriendRequestRejected
		}
		if _, err := tx.Exec(ctx,
			`UPDATE friend_requests SET status = $2, updated_at = $3 WHERE id = $1`,
			req.ID, string(req.Status), req.UpdatedAt.Time); err != nil {
			return fmt.Errorf("update friend request: %w", err)
		}
		if accept {
			if _, err := tx.Exec(ctx,
				`INSERT INTO friendships (user_id, friend_id, created_at)
				 VALUES ($1, $2, $3), ($2, $1, $3) ON CONFLICT DO NOTHING`,
				req.FromUserID, req.ToUserID, req.UpdatedAt.Time); err != nil {
				return fmt.Errorf("insert friendship: %w", err)
			}
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
