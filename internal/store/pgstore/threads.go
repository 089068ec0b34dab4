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

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// threadQuery selects a thread with its participants aggregated in one row.
const threadQuery = `
	SELECT t.id, t.channel_id, t.kind, t.owner_id, t.title, t.created_at, t.updated_at,
	       (SELECT COALESCE(array_agg(p.user_id ORDER BY p.user_id), '{}')
	        FROM direct_thread_participants p WHERE p.thread_id = t.id)
	FROM direct_threads t`

func scanThread(row pgx.Row) (*model.DirectThread, error) {
	var t model.DirectThread
	var created, updated time.Time
	err := row.Scan(&t.ID, &t.ChannelID, &t.Kind, &t.OwnerID, &t.Title, &created, &updated, &t.ParticipantIDs)
	if err != nil {
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	t.CreatedAt = model.At(created)
	t.UpdatedAt = model.At(updated)
	return &t, nil
}

func threadByID(ctx context.Context, q querier, id string) (*model.DirectThread, error) {
	t, err := scanThread(q.QueryRow(ctx, threadQuery+` WHERE t.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query thread by id: %w", err)
	}
	return t, nil
}

// CreateDirectThread deduplicates the participant list, requires every
// participant to exist, and reuses the existing thread for a dm pair. New
// threads get a hidden backing server and channel carrying the messages.
func (s *Store) CreateDirectThread(ctx context.Context, params store.CreateThreadParams) (*model.DirectThread, bool, error) {
	seen := map[string]struct{}{params.OwnerID: {}}
	participants := []string{params.OwnerID}
	for _, id := range params.ParticipantIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}
	if len(participants) < 2 {
		return nil, false, store.ErrThreadParticipants
	}

	var thread *model.DirectThread
	var created bool
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var known int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM users WHERE id = ANY($1)`, participants,
		).Scan(&known); err != nil {
			return fmt.Errorf("check participants: %w", err)
		}
		if known != len(participants) {
			return store.ErrThreadParticipants
		}

		kind := model.ThreadGroup
		if len(participants) == 2 {
			kind = model.ThreadDM
			var existingID string
			err := tx.QueryRow(ctx,
				`SELECT thread_id FROM dm_pairs WHERE pair_key = $1`,
				pairKey(participants[0], participants[1]),
			).Scan(&existingID)
			if err == nil {
				existing, err := threadByID(ctx, tx, existingID)
				if err != nil {
					return err
				}
				thread = existing
				return nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("query dm pair: %w", err)
			}
		}

		backing, err := createServerTx(ctx, tx, params.OwnerID, "direct-thread", true)
		if err != nil {
			return err
		}
		for _, id := range participants[1:] {
			if err := addMemberTx(ctx, tx, backing.ID, id); err != nil {
				return err
			}
		}
		ch, err := createChannel(ctx, tx, backing.ID, "direct", model.ChannelText)
		if err != nil {
			return err
		}

		now := model.Now()
		t := &model.DirectThread{
			ID:             ident.New(ident.Thread),
			ChannelID:      ch.ID,
			Kind:           kind,
			OwnerID:        params.OwnerID,
			Title:          params.Title,
			ParticipantIDs: participants,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO direct_threads (id, channel_id, kind, owner_id, title, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			t.ID, t.ChannelID, string(t.Kind), t.OwnerID, t.Title, now.Time,
		); err != nil {
			return fmt.Errorf("insert thread: %w", err)
		}
		for _, id := range participants {
			if _, err := tx.Exec(ctx,
				`INSERT INTO direct_thread_participants (thread_id, user_id) VALUES ($1, $2)`,
				t.ID, id,
			); err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
		}
		if kind == model.ThreadDM {
			if _, err := tx.Exec(ctx,
				`INSERT INTO dm_pairs (pair_key, thread_id) VALUES ($1, $2)`,
				pairKey(participants[0], participants[1]), t.ID,
			); err != nil {
				return fmt.Errorf("insert dm pair: %w", err)
			}
		}

		thread = t
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return thread, created, nil
}

func (s *Store) DirectThreadByID(ctx context.Context, id string) (*model.DirectThread, error) {
	return threadByID(ctx, s.pool, id)
}

// DirectThreadsForUser lists the caller's threads ascending by updatedAt, so
// the most recently active thread comes last.
func (s *Store) DirectThreadsForUser(ctx context.Context, userID string) ([]model.DirectThread, error) {
	rows, err := s.pool.Query(ctx,
		threadQuery+`
		 WHERE EXISTS (SELECT 1 FROM direct_thread_participants p
		               WHERE p.thread_id = t.id AND p.user_id = $1)
		 ORDER BY t.updated_at, t.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query threads for user: %w", err)
	}
	defer rows.Close()

	out := make([]model.DirectThread, 0)
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// LeaveDirectThread removes the caller from the thread and its backing
// server and clears their read marker. The last participant to leave tears
// the backing server down, which garbage-collects the channel, messages and
// pair lookup; in that case the returned thread is nil.
func (s *Store) LeaveDirectThread(ctx context.Context, threadID, userID string) (*model.DirectThread, error) {
	var out *model.DirectThread
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		destroyed, err := leaveThreadTx(ctx, tx, threadID, userID)
		if err != nil {
			return err
		}
		if destroyed {
			return nil
		}
		out, err = threadByID(ctx, tx, threadID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// leaveThreadTx reports whether the thread was destroyed.
func leaveThreadTx(ctx context.Context, tx pgx.Tx, threadID, userID string) (bool, error) {
	var kind model.ThreadKind
	var ownerID, backingServerID string
	err := tx.QueryRow(ctx,
		`SELECT t.kind, t.owner_id, c.server_id
		 FROM direct_threads t
		 JOIN channels c ON c.id = t.channel_id
		 WHERE t.id = $1
		 FOR UPDATE OF t`, threadID,
	).Scan(&kind, &ownerID, &backingServerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, store.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock thread: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM direct_thread_participants WHERE thread_id = $1 AND user_id = $2`,
		threadID, userID)
	if err != nil {
		return false, fmt.Errorf("delete participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, store.ErrNotFound
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM read_markers WHERE conversation_id = $1 AND user_id = $2`,
		threadID, userID); err != nil {
		return false, fmt.Errorf("delete read marker: %w", err)
	}
	if kind == model.ThreadDM {
		if _, err := tx.Exec(ctx, `DELETE FROM dm_pairs WHERE thread_id = $1`, threadID); err != nil {
			return false, fmt.Errorf("delete dm pair: %w", err)
		}
	}

	var remaining int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM direct_thread_participants WHERE thread_id = $1`, threadID,
	).Scan(&remaining); err != nil {
		return false, fmt.Errorf("count participants: %w", err)
	}
	if remaining == 0 {
		// The server cascade reaches the backing channel, which clears the
		// thread's messages and lookup entries along with the thread itself.
		if err := deleteServerTx(ctx, tx, backingServerID); err != nil {
			return false, err
		}
		return true, nil
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM server_members WHERE server_id = $1 AND user_id = $2`,
		backingServerID, userID); err != nil {
		return false, fmt.Errorf("delete backing membership: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM server_timeouts WHERE server_id = $1 AND user_id = $2`,
		backingServerID, userID); err != nil {
		return false, fmt.Errorf("delete backing timeout: %w", err)
	}
	now := model.Now()
	if ownerID == userID {
		// Hand the thread and its backing server to the lexicographically
		// first remaining participant so the owner-is-member invariant holds.
		var next string
		if err := tx.QueryRow(ctx,
			`SELECT min(user_id) FROM direct_thread_participants WHERE thread_id = $1`, threadID,
		).Scan(&next); err != nil {
			return false, fmt.Errorf("pick next owner: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE direct_threads SET owner_id = $2, updated_at = $3 WHERE id = $1`,
			threadID, next, now.Time); err != nil {
			return false, fmt.Errorf("transfer thread ownership: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE servers SET owner_id = $2 WHERE id = $1`,
			backingServerID, next); err != nil {
			return false, fmt.Errorf("transfer server ownership: %w", err)
		}
	} else if _, err := tx.Exec(ctx,
		`UPDATE direct_threads SET updated_at = $2 WHERE id = $1`,
		threadID, now.Time); err != nil {
		return false, fmt.Errorf("bump thread: %w", err)
	}
	return false, nil
}
