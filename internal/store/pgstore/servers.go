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

// DefaultRoleName is the name of the immutable default role every server is
// born with.
const DefaultRoleName = "@everyone"

const serverColumns = `id, name, owner_id, hidden, created_at`

func scanServer(row pgx.Row) (*model.Server, error) {
	var srv model.Server
	var created time.Time
	if err := row.Scan(&srv.ID, &srv.Name, &srv.OwnerID, &srv.Hidden, &created); err != nil {
		return nil, fmt.Errorf("scan server: %w", err)
	}
	srv.CreatedAt = model.At(created)
	return &srv, nil
}

func (s *Store) CreateServer(ctx context.Context, ownerID, name string) (*model.Server, error) {
	var srv *model.Server
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		srv, txErr = createServerTx(ctx, tx, ownerID, name, false)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// createServerTx seeds the default role, an Owner role holding every
// capability, and the owner's membership with that role assigned.
func createServerTx(ctx context.Context, tx pgx.Tx, ownerID, name string, hidden bool) (*model.Server, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT TRUE FROM users WHERE id = $1`, ownerID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check owner: %w", err)
	}

	now := model.Now()
	srv := &model.Server{
		ID:        ident.New(ident.Server),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		Hidden:    hidden,
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO servers (id, name, owner_id, hidden, created_at) VALUES ($1, $2, $3, $4, $5)`,
		srv.ID, srv.Name, srv.OwnerID, srv.Hidden, now.Time,
	); err != nil {
		return nil, fmt.Errorf("insert server: %w", err)
	}

	defaultRoleID := ident.New(ident.Role)
	ownerRoleID := ident.New(ident.Role)
	if _, err := tx.Exec(ctx,
		`INSERT INTO roles (id, server_id, name, permissions, is_default, created_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5), ($6, $2, $7, $8, FALSE, $5)`,
		defaultRoleID, srv.ID, DefaultRoleName, int(permission.Of(permission.ReadMessages, permission.SendMessages)), now.Time,
		ownerRoleID, "Owner", int(permission.AllSet),
	); err != nil {
		return nil, fmt.Errorf("seed roles: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO server_members (server_id, user_id, joined_at) VALUES ($1, $2, $3)`,
		srv.ID, ownerID, now.Time,
	); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO member_roles (server_id, user_id, role_id) VALUES ($1, $2, $3)`,
		srv.ID, ownerID, ownerRoleID,
	); err != nil {
		return nil, fmt.Errorf("assign owner role: %w", err)
	}

	return srv, nil
}

func (s *Store) ServerByID(ctx context.Context, id string) (*model.Server, error) {
	srv, err := scanServer(s.pool.QueryRow(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query server by id: %w", err)
	}
	return srv, nil
}

// ServersForUser lists the visible servers the user belongs to; servers
// backing direct threads stay hidden.
func (s *Store) ServersForUser(ctx context.Context, userID string) ([]model.Server, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.name, s.owner_id, s.hidden, s.created_at
		 FROM servers s
		 JOIN server_members m ON m.server_id = s.id
		 WHERE m.user_id = $1 AND NOT s.hidden
		 ORDER BY s.created_at, s.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query servers for user: %w", err)
	}
	defer rows.Close()

	out := make([]model.Server, 0)
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *srv)
	}
	return out, rows.Err()
}

func (s *Store) DeleteServer(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock server: %w", err)
		}
		return deleteServerTx(ctx, tx, id)
	})
}

// deleteServerTx removes the server row and lets the schema cascade through
// channels, messages, threads, roles, members, invites, bans, timeouts,
// audit entries and appeals. Read markers carry no foreign key because a
// conversation id can name either a channel or a thread, so they are cleared
// explicitly first.
func deleteServerTx(ctx context.Context, tx pgx.Tx, id string) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM read_markers WHERE conversation_id IN (
		     SELECT id FROM channels WHERE server_id = $1
		     UNION
		     SELECT t.id FROM direct_threads t JOIN channels c ON c.id = t.channel_id WHERE c.server_id = $1
		 )`, id,
	); err != nil {
		return fmt.Errorf("clear read markers: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM servers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, serverID, userID string) (*model.Member, error) {
	var m *model.Member
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := addMemberTx(ctx, tx, serverID, userID); err != nil {
			return err
		}
		var txErr error
		m, txErr = memberRow(ctx, tx, serverID, userID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// addMemberTx is idempotent and refuses banned users.
func addMemberTx(ctx context.Context, tx pgx.Tx, serverID, userID string) error {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1`, serverID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check server: %w", err)
	}
	err = tx.QueryRow(ctx, `SELECT TRUE FROM users WHERE id = $1`, userID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}

	var banned bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM server_bans WHERE server_id = $1 AND user_id = $2)`,
		serverID, userID,
	).Scan(&banned); err != nil {
		return fmt.Errorf("check ban: %w", err)
	}
	if banned {
		return store.ErrBanned
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO server_members (server_id, user_id, joined_at) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		serverID, userID, model.Now().Time,
	); err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *Store) Member(ctx context.Context, serverID, userID string) (*model.Member, error) {
	return memberRow(ctx, s.pool, serverID, userID)
}

// memberRow materializes one membership with its sorted role assignments.
func memberRow(ctx context.Context, q querier, serverID, userID string) (*model.Member, error) {
	m := model.Member{ServerID: serverID, UserID: userID}
	var joined time.Time
	err := q.QueryRow(ctx,
		`SELECT m.joined_at,
		        COALESCE(array_agg(mr.role_id ORDER BY mr.role_id) FILTER (WHERE mr.role_id IS NOT NULL), '{}')
		 FROM server_members m
		 LEFT JOIN member_roles mr ON mr.server_id = m.server_id AND mr.user_id = m.user_id
		 WHERE m.server_id = $1 AND m.user_id = $2
		 GROUP BY m.joined_at`,
		serverID, userID,
	).Scan(&joined, &m.RoleIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}
	m.JoinedAt = model.At(joined)
	return &m, nil
}

func (s *Store) Members(ctx context.Context, serverID string) ([]model.Member, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1`, serverID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check server: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT m.user_id, m.joined_at,
		        COALESCE(array_agg(mr.role_id ORDER BY mr.role_id) FILTER (WHERE mr.role_id IS NOT NULL), '{}')
		 FROM server_members m
		 LEFT JOIN member_roles mr ON mr.server_id = m.server_id AND mr.user_id = m.user_id
		 WHERE m.server_id = $1
		 GROUP BY m.user_id, m.joined_at
		 ORDER BY m.joined_at, m.user_id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	out := make([]model.Member, 0)
	for rows.Next() {
		m := model.Member{ServerID: serverID}
		var joined time.Time
		if err := rows.Scan(&m.UserID, &joined, &m.RoleIDs); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.JoinedAt = model.At(joined)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) RemoveMember(ctx context.Context, serverID, userID string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return removeMemberTx(ctx, tx, serverID, userID)
	})
}

// removeMemberTx drops the membership with its role assignments (via the
// composite foreign key) and any active timeout.
func removeMemberTx(ctx context.Context, tx pgx.Tx, serverID, userID string) error {
	tag, err := tx.Exec(ctx,
		`DELETE FROM server_members WHERE server_id = $1 AND user_id = $2`, serverID, userID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM server_timeouts WHERE server_id = $1 AND user_id = $2`, serverID, userID); err != nil {
		return fmt.Errorf("delete timeout: %w", err)
	}
	return nil
}
