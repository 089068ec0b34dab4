package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// userColumns lists the columns scanned by scanUser, in this exact order.
const userColumns = `id, email, username, display_name, bot, password_hash, totp_secret, totp_enabled, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var created time.Time
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.DisplayName, &u.Bot,
		&u.PasswordHash, &u.TOTPSecret, &u.TOTPEnabled, &created,
	)
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = model.At(created)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, params store.CreateUserParams) (*model.User, error) {
	return createUser(ctx, s.pool, params)
}

func createUser(ctx context.Context, q querier, params store.CreateUserParams) (*model.User, error) {
	// Username collisions take precedence over email collisions; the insert
	// below would report whichever unique index fires first.
	var taken bool
	err := q.QueryRow(ctx,
		`SELECT TRUE FROM users WHERE lower(username) = lower($1)`, params.Username).Scan(&taken)
	if err == nil {
		return nil, store.ErrUsernameTaken
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	u := &model.User{
		ID:           ident.New(ident.User),
		Email:        strings.ToLower(params.Email),
		Username:     params.Username,
		DisplayName:  params.DisplayName,
		Bot:          params.Bot,
		CreatedAt:    model.Now(),
		PasswordHash: params.PasswordHash,
	}
	_, err = q.Exec(ctx,
		`INSERT INTO users (id, email, username, display_name, bot, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Username, u.DisplayName, u.Bot, u.PasswordHash, u.CreatedAt.Time,
	)
	if err != nil {
		if isUniqueViolation(err) {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.ConstraintName == "users_username_key" {
				return nil, store.ErrUsernameTaken
			}
			return nil, store.ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	return u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user by username: %w", err)
	}
	return u, nil
}

func (s *Store) UpdateUserTOTP(ctx context.Context, userID, secret string, enabled bool) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE users SET totp_secret = $2, totp_enabled = $3
		 WHERE id = $1
		 RETURNING `+userColumns,
		userID, secret, enabled))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("update user totp: %w", err)
	}
	return u, nil
}

// DeleteUser removes the account. Thread participations are wound down first
// so empty backing servers are garbage-collected and ownership transfers;
// owned servers go next; the user row cascade then clears sessions, push
// subscriptions, presence, friendships, requests, memberships, bans and
// appeals. Authored messages keep their dangling author_id.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT TRUE FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		rows, err := tx.Query(ctx,
			`SELECT p.thread_id FROM direct_thread_participants p WHERE p.user_id = $1`, id)
		if err != nil {
			return fmt.Errorf("query thread participations: %w", err)
		}
		threadIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("collect thread participations: %w", err)
		}
		for _, threadID := range threadIDs {
			if _, err := leaveThreadTx(ctx, tx, threadID, id); err != nil {
				return err
			}
		}

		ownedRows, err := tx.Query(ctx, `SELECT id FROM servers WHERE owner_id = $1`, id)
		if err != nil {
			return fmt.Errorf("query owned servers: %w", err)
		}
		owned, err := pgx.CollectRows(ownedRows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("collect owned servers: %w", err)
		}
		for _, serverID := range owned {
			if err := deleteServerTx(ctx, tx, serverID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

func (s *Store) CreateSession(ctx context.Context, userID string) (*model.Session, error) {
	return createSession(ctx, s.pool, userID)
}

func createSession(ctx context.Context, q querier, userID string) (*model.Session, error) {
	sess := &model.Session{
		Token:     ident.NewToken(),
		UserID:    userID,
		CreatedAt: model.Now(),
	}
	_, err := q.Exec(ctx,
		`INSERT INTO sessions (token, user_id, created_at) VALUES ($1, $2, $3)`,
		sess.Token, sess.UserID, sess.CreatedAt.Time,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *Store) SessionUser(ctx context.Context, token string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.username, u.display_name, u.bot, u.password_hash, u.totp_secret, u.totp_enabled, u.created_at
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query session user: %w", err)
	}
	return u, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
