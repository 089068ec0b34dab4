package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// Moderate applies one moderation verb, mutates the member and ban sets
// accordingly and appends an audit entry, all in one transaction.
func (s *Store) Moderate(ctx context.Context, params store.ModerationParams) (*model.ModerationAction, error) {
	var out *model.ModerationAction
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var ownerID string
		err := tx.QueryRow(ctx,
			`SELECT owner_id FROM servers WHERE id = $1 FOR UPDATE`, params.ServerID).Scan(&ownerID)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock server: %w", err)
		}
		if params.TargetUserID == ownerID {
			return store.ErrModerateOwner
		}

		now := model.Now()
		action := &model.ModerationAction{
			ID:           ident.New(ident.Moderation),
			ServerID:     params.ServerID,
			ActorID:      params.ActorID,
			TargetUserID: params.TargetUserID,
			ActionType:   params.Action,
			Reason:       params.Reason,
			CreatedAt:    now,
		}

		switch params.Action {
		case model.ModerationKick:
			if err := removeMemberTx(ctx, tx, params.ServerID, params.TargetUserID); err != nil {
				return err
			}

		case model.ModerationBan:
			_, err := tx.Exec(ctx,
				`INSERT INTO server_bans (server_id, user_id, reason, created_by, created_at)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (server_id, user_id)
				 DO UPDATE SET reason = EXCLUDED.reason, created_by = EXCLUDED.created_by, created_at = EXCLUDED.created_at`,
				params.ServerID, params.TargetUserID, params.Reason, params.ActorID, now.Time)
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("upsert ban: %w", err)
			}
			if _, err := tx.Exec(ctx,
				`DELETE FROM server_members WHERE server_id = $1 AND user_id = $2`,
				params.ServerID, params.TargetUserID); err != nil {
				return fmt.Errorf("delete membership: %w", err)
			}
			if _, err := tx.Exec(ctx,
				`DELETE FROM server_timeouts WHERE server_id = $1 AND user_id = $2`,
				params.ServerID, params.TargetUserID); err != nil {
				return fmt.Errorf("delete timeout: %w", err)
			}

		case model.ModerationTimeout:
			if params.ExpiresAt == nil {
				return store.ErrTimeoutExpiry
			}
			var member bool
			err := tx.QueryRow(ctx,
				`SELECT TRUE FROM server_members WHERE server_id = $1 AND user_id = $2`,
				params.ServerID, params.TargetUserID).Scan(&member)
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("check membership: %w", err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO server_timeouts (server_id, user_id, expires_at)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (server_id, user_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
				params.ServerID, params.TargetUserID, params.ExpiresAt.UTC()); err != nil {
				return fmt.Errorf("upsert timeout: %w", err)
			}
			action.ExpiresAt = model.At(*params.ExpiresAt)

		case model.ModerationUnban:
			tag, err := tx.Exec(ctx,
				`DELETE FROM server_bans WHERE server_id = $1 AND user_id = $2`,
				params.ServerID, params.TargetUserID)
			if err != nil {
				return fmt.Errorf("delete ban: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return store.ErrNotFound
			}

		default:
			return store.ErrNotFound
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO moderation_actions (id, server_id, actor_id, target_user_id, action_type, reason, expires_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			action.ID, action.ServerID, action.ActorID, action.TargetUserID,
			string(action.ActionType), action.Reason, nullTime(action.ExpiresAt), action.CreatedAt.Time,
		); err != nil {
			return fmt.Errorf("insert moderation action: %w", err)
		}
		if err := appendAuditTx(ctx, tx, params.ServerID, params.ActorID, params.TargetUserID, string(params.Action), params.Reason, nil); err != nil {
			return err
		}
		out = action
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func appendAuditTx(ctx context.Context, tx pgx.Tx, serverID, actorID, targetUserID, actionType, reason string, metadata map[string]any) error {
	var meta any
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		meta = raw
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_log (id, server_id, actor_id, target_user_id, action_type, reason, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ident.New(ident.Audit), serverID, actorID, targetUserID, actionType, reason, meta, model.Now().Time,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) Bans(ctx context.Context, serverID string) ([]model.Ban, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1`, serverID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check server: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT server_id, user_id, reason, created_by, created_at
		 FROM server_bans WHERE server_id = $1 ORDER BY created_at, user_id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("query bans: %w", err)
	}
	defer rows.Close()

	out := make([]model.Ban, 0)
	for rows.Next() {
		var b model.Ban
		var created time.Time
		if err := rows.Scan(&b.ServerID, &b.UserID, &b.Reason, &b.CreatedBy, &created); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		b.CreatedAt = model.At(created)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) IsBanned(ctx context.Context, serverID, userID string) (bool, error) {
	var banned bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM server_bans WHERE server_id = $1 AND user_id = $2)`,
		serverID, userID).Scan(&banned); err != nil {
		return false, fmt.Errorf("check ban: %w", err)
	}
	return banned, nil
}

// ActiveTimeout reports whether the user is currently timed out. An expired
// timeout is removed on observation.
func (s *Store) ActiveTimeout(ctx context.Context, serverID, userID string) (bool, error) {
	return activeTimeout(ctx, s.pool, serverID, userID)
}

func activeTimeout(ctx context.Context, q querier, serverID, userID string) (bool, error) {
	if _, err := q.Exec(ctx,
		`DELETE FROM server_timeouts WHERE server_id = $1 AND user_id = $2 AND expires_at <= $3`,
		serverID, userID, ident.Now()); err != nil {
		return false, fmt.Errorf("expire timeout: %w", err)
	}
	var active bool
	if err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM server_timeouts WHERE server_id = $1 AND user_id = $2)`,
		serverID, userID).Scan(&active); err != nil {
		return false, fmt.Errorf("check timeout: %w", err)
	}
	return active, nil
}

// AuditLog lists the server's audit entries newest first.
func (s *Store) AuditLog(ctx context.Context, serverID string, limit int) ([]model.AuditLogEntry, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1`, serverID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check server: %w", err)
	}

	limit = store.ClampLimit(limit, store.MaxMessageLimit)
	rows, err := s.pool.Query(ctx,
		`SELECT id, server_id, actor_id, target_user_id, action_type, reason, metadata, created_at
		 FROM audit_log WHERE server_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	out := make([]model.AuditLogEntry, 0)
	for rows.Next() {
		var entry model.AuditLogEntry
		var meta []byte
		var created time.Time
		if err := rows.Scan(&entry.ID, &entry.ServerID, &entry.ActorID, &entry.TargetUserID,
			&entry.ActionType, &entry.Reason, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		entry.CreatedAt = model.At(created)
		out = append(out, entry)
	}
	return out, rows.Err()
}
