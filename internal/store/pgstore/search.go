package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	userSearchLimit    = 20
)

func searchLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern frames the query as a substring match, escaping LIKE
// metacharacters so user input only ever matches literally.
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}

// SearchUsers matches a case-insensitive substring against username and
// display name, excluding the caller.
func (s *Store) SearchUsers(ctx context.Context, callerID, query string) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id <> $1 AND (username ILIKE $2 OR display_name ILIKE $2)
		 ORDER BY username COLLATE "C", id
		 LIMIT $3`, callerID, likePattern(query), userSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
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

// SearchChannels matches channel names the caller can read. Channels of
// servers backing direct threads never surface here.
func (s *Store) SearchChannels(ctx context.Context, params store.SearchParams) ([]model.Channel, error) {
	query := `SELECT c.id, c.server_id, c.name, c.type, c.created_at
		 FROM channels c
		 JOIN servers s ON s.id = c.server_id AND NOT s.hidden
		 WHERE c.name ILIKE $1`
	args := []any{likePattern(params.Query)}
	if params.ServerID != "" {
		query += ` AND c.server_id = $2`
		args = append(args, params.ServerID)
	}
	query += ` ORDER BY c.name COLLATE "C", c.id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	candidates := make([]*model.Channel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	limit := searchLimit(params.Limit)
	out := make([]model.Channel, 0, min(limit, len(candidates)))
	for _, ch := range candidates {
		if len(out) == limit {
			break
		}
		if s.canRead(ctx, ch, params.CallerID) {
			out = append(out, *ch)
		}
	}
	return out, nil
}

// SearchMessages scans newest first and keeps messages the caller can read:
// channel messages behind the read capability, thread messages behind
// participation. A serverId filter excludes thread messages entirely.
func (s *Store) SearchMessages(ctx context.Context, params store.SearchParams) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE body ILIKE $1
		 ORDER BY created_at DESC, id DESC`, likePattern(params.Query))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	matched := make([]*model.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		matched = append(matched, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	limit := searchLimit(params.Limit)
	kept := make([]*model.Message, 0, min(limit, len(matched)))
	channels := make(map[string]*model.Channel)
	readable := make(map[string]bool)
	participant := make(map[string]bool)
	for _, m := range matched {
		if len(kept) == limit {
			break
		}
		if m.DirectThreadID != "" {
			if params.ServerID != "" {
				continue
			}
			in, ok := participant[m.DirectThreadID]
			if !ok {
				err := s.pool.QueryRow(ctx,
					`SELECT EXISTS (SELECT 1 FROM direct_thread_participants WHERE thread_id = $1 AND user_id = $2)`,
					m.DirectThreadID, params.CallerID).Scan(&in)
				if err != nil {
					return nil, fmt.Errorf("check participation: %w", err)
				}
				participant[m.DirectThreadID] = in
			}
			if !in {
				continue
			}
		} else {
			ch, ok := channels[m.ChannelID]
			if !ok {
				var err error
				ch, err = s.ChannelByID(ctx, m.ChannelID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return nil, err
				}
				channels[m.ChannelID] = ch
				if ch != nil {
					readable[ch.ID] = s.canRead(ctx, ch, params.CallerID)
				}
			}
			if ch == nil {
				continue
			}
			if params.ServerID != "" && ch.ServerID != params.ServerID {
				continue
			}
			if !readable[ch.ID] {
				continue
			}
		}
		kept = append(kept, m)
	}

	if err := decorateMessages(ctx, s.pool, kept); err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(kept))
	for _, m := range kept {
		out = append(out, *m)
	}
	return out, nil
}
