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

const inviteColumns = `code, server_id, created_by, created_at, expires_at, max_uses, uses`

func scanInvite(row pgx.Row) (*model.Invite, error) {
	var inv model.Invite
	var created time.Time
	var expires *time.Time
	if err := row.Scan(&inv.Code, &inv.ServerID, &inv.CreatedBy, &created, &expires, &inv.MaxUses, &inv.Uses); err != nil {
		return nil, fmt.Errorf("scan invite: %w", err)
	}
	inv.CreatedAt = model.At(created)
	inv.ExpiresAt = asTimestamp(expires)
	return &inv, nil
}

func (s *Store) CreateInvite(ctx context.Context, params store.CreateInviteParams) (*model.Invite, error) {
	inv := &model.Invite{
		ServerID:  params.ServerID,
		CreatedBy: params.CreatedBy,
		CreatedAt: model.Now(),
		MaxUses:   params.MaxUses,
	}
	if params.ExpiresAt != nil {
		inv.ExpiresAt = model.At(*params.ExpiresAt)
	}

	// Regenerate on the off chance a fresh code collides.
	for {
		inv.Code = ident.NewInviteCode()
		_, err := s.pool.Exec(ctx,
			`INSERT INTO server_invites (code, server_id, created_by, created_at, expires_at, max_uses)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			inv.Code, inv.ServerID, inv.CreatedBy, inv.CreatedAt.Time, nullTime(inv.ExpiresAt), inv.MaxUses)
		if err == nil {
			return inv, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("insert invite: %w", err)
	}
}

func (s *Store) Invites(ctx context.Context, serverID string) ([]model.Invite, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1`, serverID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check server: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+inviteColumns+` FROM server_invites WHERE server_id = $1 ORDER BY created_at, code`,
		serverID)
	if err != nil {
		return nil, fmt.Errorf("query invites: %w", err)
	}
	defer rows.Close()

	out := make([]model.Invite, 0)
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *Store) DeleteInvite(ctx context.Context, serverID, code string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM server_invites WHERE code = $1 AND server_id = $2`, code, serverID)
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// JoinByInvite validates the code, inserts the membership and increments the
// use counter in one transaction. Unknown, expired and exhausted codes and
// banned callers all read as the same invalid-invite error so codes cannot
// be probed. Joining a server the caller already belongs to returns the
// server without consuming a use.
func (s *Store) JoinByInvite(ctx context.Context, code, userID string) (*model.Server, error) {
	var out *model.Server
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		inv, err := scanInvite(tx.QueryRow(ctx,
			`SELECT `+inviteColumns+` FROM server_invites WHERE code = $1 FOR UPDATE`, code))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrInviteInvalid
			}
			return fmt.Errorf("lock invite: %w", err)
		}
		srv, err := scanServer(tx.QueryRow(ctx,
			`SELECT `+serverColumns+` FROM servers WHERE id = $1`, inv.ServerID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrInviteInvalid
			}
			return fmt.Errorf("query server: %w", err)
		}

		var banned bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM server_bans WHERE server_id = $1 AND user_id = $2)`,
			inv.ServerID, userID).Scan(&banned); err != nil {
			return fmt.Errorf("check ban: %w", err)
		}
		if banned {
			return store.ErrInviteInvalid
		}
		var member bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM server_members WHERE server_id = $1 AND user_id = $2)`,
			inv.ServerID, userID).Scan(&member); err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if member {
			out = srv
			return nil
		}

		if !inv.ExpiresAt.IsZero() && !inv.ExpiresAt.After(ident.Now()) {
			return store.ErrInviteInvalid
		}
		if inv.MaxUses > 0 && inv.Uses >= inv.MaxUses {
			return store.ErrInviteInvalid
		}

		if err := addMemberTx(ctx, tx, inv.ServerID, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE server_invites SET uses = uses + 1 WHERE code = $1`, code); err != nil {
			return fmt.Errorf("consume invite: %w", err)
		}
		out = srv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
