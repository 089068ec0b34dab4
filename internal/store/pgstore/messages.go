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

const messageColumns = `id, channel_id, conversation_id, direct_thread_id, author_id, body, reply_to_id, created_at, updated_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	var created time.Time
	var updated *time.Time
	err := row.Scan(&m.ID, &m.ChannelID, &m.ConversationID, &m.DirectThreadID,
		&m.AuthorID, &m.Body, &m.ReplyToID, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.CreatedAt = model.At(created)
	m.UpdatedAt = asTimestamp(updated)
	return &m, nil
}

// decorateMessages attaches each message's attachment list and reaction
// summary, both non-nil so they encode as arrays. Reaction summaries order
// by emoji bytes to stay independent of the database collation.
func decorateMessages(ctx context.Context, q querier, msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	byID := make(map[string]*model.Message, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		m.Attachments = []model.Attachment{}
		m.Reactions = []model.ReactionSummary{}
		byID[m.ID] = m
	}

	rows, err := q.Query(ctx,
		`SELECT message_id, id, file_name, content_type, size_bytes, url, uploaded_by, created_at
		 FROM message_attachments WHERE message_id = ANY($1) ORDER BY message_id, ordinal`, ids)
	if err != nil {
		return fmt.Errorf("query attachments: %w", err)
	}
	for rows.Next() {
		var messageID string
		var a model.Attachment
		var created time.Time
		if err := rows.Scan(&messageID, &a.ID, &a.FileName, &a.ContentType, &a.SizeBytes, &a.URL, &a.UploadedBy, &created); err != nil {
			rows.Close()
			return fmt.Errorf("scan attachment: %w", err)
		}
		a.CreatedAt = model.At(created)
		m := byID[messageID]
		m.Attachments = append(m.Attachments, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read attachments: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT message_id, emoji, count(*)
		 FROM message_reactions WHERE message_id = ANY($1)
		 GROUP BY message_id, emoji ORDER BY message_id, emoji COLLATE "C"`, ids)
	if err != nil {
		return fmt.Errorf("query reactions: %w", err)
	}
	for rows.Next() {
		var messageID string
		var r model.ReactionSummary
		if err := rows.Scan(&messageID, &r.Emoji, &r.Count); err != nil {
			rows.Close()
			return fmt.Errorf("scan reaction: %w", err)
		}
		m := byID[messageID]
		m.Reactions = append(m.Reactions, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read reactions: %w", err)
	}
	return nil
}

func conversationExists(ctx context.Context, q querier, conversationID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM channels WHERE id = $1)
		     OR EXISTS (SELECT 1 FROM direct_threads WHERE id = $1)`, conversationID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check conversation: %w", err)
	}
	return exists, nil
}

func (s *Store) CreateMessage(ctx context.Context, params store.CreateMessageParams) (*model.Message, error) {
	var out *model.Message
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		channelID := params.ChannelID
		conversationID := channelID
		if params.DirectThreadID != "" {
			err := tx.QueryRow(ctx,
				`SELECT channel_id FROM direct_threads WHERE id = $1 FOR UPDATE`,
				params.DirectThreadID).Scan(&channelID)
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("check thread: %w", err)
			}
			conversationID = params.DirectThreadID
		} else {
			var exists bool
			err := tx.QueryRow(ctx, `SELECT TRUE FROM channels WHERE id = $1`, channelID).Scan(&exists)
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("check channel: %w", err)
			}
		}

		if params.ReplyToID != "" {
			var exists bool
			err := tx.QueryRow(ctx,
				`SELECT TRUE FROM messages WHERE id = $1 AND conversation_id = $2`,
				params.ReplyToID, conversationID).Scan(&exists)
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrReplyNotFound
			}
			if err != nil {
				return fmt.Errorf("check reply target: %w", err)
			}
		}

		m := &model.Message{
			ID:             ident.New(ident.Message),
			ChannelID:      channelID,
			ConversationID: conversationID,
			DirectThreadID: params.DirectThreadID,
			AuthorID:       params.AuthorID,
			Body:           params.Body,
			Attachments:    params.Attachments,
			ReplyToID:      params.ReplyToID,
			CreatedAt:      model.Now(),
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO messages (id, channel_id, conversation_id, direct_thread_id, author_id, body, reply_to_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID, m.ChannelID, m.ConversationID, m.DirectThreadID, m.AuthorID, m.Body, m.ReplyToID, m.CreatedAt.Time,
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		for i, a := range params.Attachments {
			if _, err := tx.Exec(ctx,
				`INSERT INTO message_attachments (message_id, ordinal, id, file_name, content_type, size_bytes, url, uploaded_by, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				m.ID, i, a.ID, a.FileName, a.ContentType, a.SizeBytes, a.URL, a.UploadedBy, a.CreatedAt.Time,
			); err != nil {
				return fmt.Errorf("insert attachment: %w", err)
			}
		}

		// A new thread message bumps the thread so listings reorder.
		if params.DirectThreadID != "" {
			if _, err := tx.Exec(ctx,
				`UPDATE direct_threads SET updated_at = $2 WHERE id = $1`,
				params.DirectThreadID, m.CreatedAt.Time); err != nil {
				return fmt.Errorf("bump thread: %w", err)
			}
		}

		if m.Attachments == nil {
			m.Attachments = []model.Attachment{}
		}
		m.Reactions = []model.ReactionSummary{}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) MessageByID(ctx context.Context, id string) (*model.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message by id: %w", err)
	}
	if err := decorateMessages(ctx, s.pool, []*model.Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns a window of the conversation in ascending
// (createdAt, id) order. Cursors are exclusive and must name messages of the
// same conversation; without a lower cursor the newest page is served.
func (s *Store) ListMessages(ctx context.Context, params store.ListMessagesParams) ([]model.Message, error) {
	exists, err := conversationExists(ctx, s.pool, params.ConversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	limit := store.ClampLimit(params.Limit, store.MaxMessageLimit)

	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1`
	args := []any{params.ConversationID}
	for _, cursor := range []struct {
		id string
		op string
	}{{params.After, ">"}, {params.Before, "<"}} {
		if cursor.id == "" {
			continue
		}
		var at time.Time
		err := s.pool.QueryRow(ctx,
			`SELECT created_at FROM messages WHERE id = $1 AND conversation_id = $2`,
			cursor.id, params.ConversationID).Scan(&at)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("resolve cursor: %w", err)
		}
		query += fmt.Sprintf(" AND (created_at, id) %s ($%d, $%d)", cursor.op, len(args)+1, len(args)+2)
		args = append(args, at, cursor.id)
	}
	if params.After != "" {
		query += fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d", len(args)+1)
	} else {
		query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]*model.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	if params.After == "" {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	if err := decorateMessages(ctx, s.pool, msgs); err != nil {
		return nil, err
	}

	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out, nil
}

func (s *Store) UpdateMessage(ctx context.Context, id, authorID, body string) (*model.Message, error) {
	var out *model.Message
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var storedAuthor string
		err := tx.QueryRow(ctx,
			`SELECT author_id FROM messages WHERE id = $1 FOR UPDATE`, id).Scan(&storedAuthor)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock message: %w", err)
		}
		if storedAuthor != authorID {
			return store.ErrNotAuthor
		}
		m, err := scanMessage(tx.QueryRow(ctx,
			`UPDATE messages SET body = $2, updated_at = $3 WHERE id = $1 RETURNING `+messageColumns,
			id, body, model.Now().Time))
		if err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		if err := decorateMessages(ctx, tx, []*model.Message{m}); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteMessage returns a snapshot of the deleted message so callers can
// fan the deletion out.
func (s *Store) DeleteMessage(ctx context.Context, id, authorID string) (*model.Message, error) {
	var out *model.Message
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		m, err := scanMessage(tx.QueryRow(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("lock message: %w", err)
		}
		if m.AuthorID != authorID {
			return store.ErrNotAuthor
		}
		if err := decorateMessages(ctx, tx, []*model.Message{m}); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddReaction inserts into the (message, user, emoji) set. The boolean
// reports whether the set changed, so duplicate reactions emit no event.
func (s *Store) AddReaction(ctx context.Context, messageID, userID, emoji string) (*model.Message, bool, error) {
	var out *model.Message
	var changed bool
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		m, err := scanMessage(tx.QueryRow(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, messageID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("lock message: %w", err)
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
			 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			messageID, userID, emoji, model.Now().Time)
		if err != nil {
			return fmt.Errorf("insert reaction: %w", err)
		}
		changed = tag.RowsAffected() > 0
		if err := decorateMessages(ctx, tx, []*model.Message{m}); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

// RemoveReaction deletes from the reaction set; removing an absent reaction
// is a no-op.
func (s *Store) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (*model.Message, bool, error) {
	var out *model.Message
	var changed bool
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		m, err := scanMessage(tx.QueryRow(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, messageID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("lock message: %w", err)
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
			messageID, userID, emoji)
		if err != nil {
			return fmt.Errorf("delete reaction: %w", err)
		}
		changed = tag.RowsAffected() > 0
		if err := decorateMessages(ctx, tx, []*model.Message{m}); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

func (s *Store) ReadMarker(ctx context.Context, conversationID, userID string) (*model.ReadMarker, error) {
	exists, err := conversationExists(ctx, s.pool, conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	var marker model.ReadMarker
	var updated time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT conversation_id, user_id, last_read_message_id, updated_at
		 FROM read_markers WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&marker.ConversationID, &marker.UserID, &marker.LastReadMessageID, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		// Never-written markers read back as the empty sentinel.
		return &model.ReadMarker{ConversationID: conversationID, UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query read marker: %w", err)
	}
	marker.UpdatedAt = model.At(updated)
	return &marker, nil
}

func (s *Store) SetReadMarker(ctx context.Context, conversationID, userID, lastReadMessageID string) (*model.ReadMarker, error) {
	var out *model.ReadMarker
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		exists, err := conversationExists(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		if lastReadMessageID != "" {
			var ok bool
			err := tx.QueryRow(ctx,
				`SELECT TRUE FROM messages WHERE id = $1 AND conversation_id = $2`,
				lastReadMessageID, conversationID).Scan(&ok)
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrMarkerMessage
			}
			if err != nil {
				return fmt.Errorf("check marker message: %w", err)
			}
		}

		marker := &model.ReadMarker{
			ConversationID:    conversationID,
			UserID:            userID,
			LastReadMessageID: lastReadMessageID,
			UpdatedAt:         model.Now(),
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO read_markers (conversation_id, user_id, last_read_message_id, updated_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (conversation_id, user_id)
			 DO UPDATE SET last_read_message_id = EXCLUDED.last_read_message_id, updated_at = EXCLUDED.updated_at`,
			marker.ConversationID, marker.UserID, marker.LastReadMessageID, marker.UpdatedAt.Time,
		); err != nil {
			return fmt.Errorf("upsert read marker: %w", err)
		}
		out = marker
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
