package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// PermissionContext assembles the kernel inputs for one (server, user) pair.
// Channel overwrites are included when channelID is non-empty; the channel
// must then belong to the server.
func (s *Store) PermissionContext(ctx context.Context, serverID, userID, channelID string) (*store.PermissionContext, error) {
	return s.permissionContext(ctx, s.pool, serverID, userID, channelID)
}

func (s *Store) permissionContext(ctx context.Context, q querier, serverID, userID, channelID string) (*store.PermissionContext, error) {
	pc := &store.PermissionContext{}
	err := q.QueryRow(ctx, `SELECT owner_id FROM servers WHERE id = $1`, serverID).Scan(&pc.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load server: %w", err)
	}
	if channelID != "" {
		var ok bool
		err = q.QueryRow(ctx, `SELECT TRUE FROM channels WHERE id = $1 AND server_id = $2`, channelID, serverID).Scan(&ok)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load channel: %w", err)
		}
	}

	err = q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM server_members WHERE server_id = $1 AND user_id = $2)`,
		serverID, userID).Scan(&pc.IsMember)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if pc.IsMember {
		rows, err := q.Query(ctx, `
			SELECT r.id, r.permissions FROM roles r
			WHERE r.server_id = $1 AND r.is_default
			UNION ALL
			SELECT r.id, r.permissions FROM roles r
			JOIN member_roles mr ON mr.role_id = r.id
			WHERE mr.server_id = $1 AND mr.user_id = $2`, serverID, userID)
		if err != nil {
			return nil, fmt.Errorf("load roles: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var g permission.RoleGrant
			var grants int
			if err := rows.Scan(&g.ID, &grants); err != nil {
				return nil, fmt.Errorf("scan role grant: %w", err)
			}
			g.Grants = permission.Set(grants)
			pc.Roles = append(pc.Roles, g)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate roles: %w", err)
		}
	}

	if channelID != "" {
		ows, err := overwriteRows(ctx, q, channelID)
		if err != nil {
			return nil, err
		}
		for _, ow := range ows {
			pc.Overwrites = append(pc.Overwrites, permission.Overwrite{
				TargetType: ow.TargetType,
				TargetID:   ow.TargetID,
				Allow:      ow.Allow,
				Deny:       ow.Deny,
			})
		}
	}

	err = q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM server_bans WHERE server_id = $1 AND user_id = $2)`,
		serverID, userID).Scan(&pc.Banned)
	if err != nil {
		return nil, fmt.Errorf("check ban: %w", err)
	}
	timedOut, err := activeTimeout(ctx, q, serverID, userID)
	if err != nil {
		return nil, err
	}
	pc.TimedOut = timedOut
	return pc, nil
}

// canRead reports whether the user may read the given channel.
func (s *Store) canRead(ctx context.Context, ch *model.Channel, userID string) bool {
	pc, err := s.permissionContext(ctx, s.pool, ch.ServerID, userID, ch.ID)
	if err != nil {
		return false
	}
	if !pc.IsMember && pc.OwnerID != userID {
		return false
	}
	return permission.Allows(pc.Query(userID), permission.ReadMessages)
}
