package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

const roleColumns = `id, server_id, name, permissions, is_default, created_at`

func scanRole(row pgx.Row) (*model.Role, error) {
	var r model.Role
	var perms int
	var created time.Time
	if err := row.Scan(&r.ID, &r.ServerID, &r.Name, &perms, &r.IsDefault, &created); err != nil {
		return nil, fmt.Errorf("scan role: %w", err)
	}
	r.Permissions = permission.Set(perms)
	r.CreatedAt = model.At(created)
	return &r, nil
}

func (s *Store) CreateRole(ctx context.Context, serverID, name string, grants permission.Set) (*model.Role, error) {
	r := &model.Role{
		ID:          ident.New(ident.Role),
		ServerID:    serverID,
		Name:        name,
		Permissions: grants,
		CreatedAt:   model.Now(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO roles (id, server_id, name, permissions, is_default, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5)`,
		r.ID, r.ServerID, r.Name, int(r.Permissions), r.CreatedAt.Time)
	if isForeignKeyViolation(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("insert role: %w", err)
	}
	return r, nil
}

// Roles lists a server's roles, default role first, then by creation order.
func (s *Store) Roles(ctx context.Context, serverID string) ([]model.Role, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1`, serverID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check server: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM roles
		 WHERE server_id = $1
		 ORDER BY is_default DESC, created_at, id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	out := make([]model.Role, 0)
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRole(ctx context.Context, serverID, roleID string, params store.UpdateRoleParams) (*model.Role, error) {
	var out *model.Role
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		r, err := scanRole(tx.QueryRow(ctx,
			`SELECT `+roleColumns+` FROM roles WHERE id = $1 AND server_id = $2 FOR UPDATE`,
			roleID, serverID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("lock role: %w", err)
		}
		if r.IsDefault && params.Name != nil {
			return store.ErrImmutableRole
		}
		if params.Name != nil {
			r.Name = *params.Name
		}
		if params.Permissions != nil {
			r.Permissions = *params.Permissions
		}
		if _, err := tx.Exec(ctx,
			`UPDATE roles SET name = $2, permissions = $3 WHERE id = $1`,
			r.ID, r.Name, int(r.Permissions)); err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRole removes the role, its assignments and any overwrites targeting
// it. The default role is not deletable.
func (s *Store) DeleteRole(ctx context.Context, serverID, roleID string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var isDefault bool
		err := tx.QueryRow(ctx,
			`SELECT is_default FROM roles WHERE id = $1 AND server_id = $2 FOR UPDATE`,
			roleID, serverID).Scan(&isDefault)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock role: %w", err)
		}
		if isDefault {
			return store.ErrImmutableRole
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM channel_overwrites WHERE target_type = $1 AND target_id = $2`,
			string(permission.TargetRole), roleID); err != nil {
			return fmt.Errorf("delete role overwrites: %w", err)
		}
		// Assignments go with the role via the member_roles foreign key.
		if _, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
			return fmt.Errorf("delete role: %w", err)
		}
		return nil
	})
}

// AssignRole is idempotent.
func (s *Store) AssignRole(ctx context.Context, serverID, userID, roleID string) (*model.Member, error) {
	var m *model.Member
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT TRUE FROM server_members WHERE server_id = $1 AND user_id = $2`,
			serverID, userID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		err = tx.QueryRow(ctx,
			`SELECT TRUE FROM roles WHERE id = $1 AND server_id = $2`,
			roleID, serverID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check role: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO member_roles (server_id, user_id, role_id) VALUES ($1, $2, $3)
			 ON CONFLICT DO NOTHING`,
			serverID, userID, roleID); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
		m, err = memberRow(ctx, tx, serverID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UnassignRole removing an unassigned role is a no-op.
func (s *Store) UnassignRole(ctx context.Context, serverID, userID, roleID string) (*model.Member, error) {
	var m *model.Member
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT TRUE FROM server_members WHERE server_id = $1 AND user_id = $2`,
			serverID, userID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM member_roles WHERE server_id = $1 AND user_id = $2 AND role_id = $3`,
			serverID, userID, roleID); err != nil {
			return fmt.Errorf("delete assignment: %w", err)
		}
		m, err = memberRow(ctx, tx, serverID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
