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

const channelColumns = `id, server_id, name, type, created_at`

func scanChannel(row pgx.Row) (*model.Channel, error) {
	var ch model.Channel
	var created time.Time
	if err := row.Scan(&ch.ID, &ch.ServerID, &ch.Name, &ch.Type, &created); err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	ch.CreatedAt = model.At(created)
	return &ch, nil
}

func (s *Store) CreateChannel(ctx context.Context, serverID, name string, channelType model.ChannelType) (*model.Channel, error) {
	return createChannel(ctx, s.pool, serverID, name, channelType)
}

func createChannel(ctx context.Context, q querier, serverID, name string, channelType model.ChannelType) (*model.Channel, error) {
	ch := &model.Channel{
		ID:        ident.New(ident.Channel),
		ServerID:  serverID,
		Name:      name,
		Type:      channelType,
		CreatedAt: model.Now(),
	}
	_, err := q.Exec(ctx,
		`INSERT INTO channels (id, server_id, name, type, created_at) VALUES ($1, $2, $3, $4, $5)`,
		ch.ID, ch.ServerID, ch.Name, string(ch.Type), ch.CreatedAt.Time)
	if isForeignKeyViolation(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	return ch, nil
}

func (s *Store) ChannelByID(ctx context.Context, id string) (*model.Channel, error) {
	ch, err := scanChannel(s.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query channel by id: %w", err)
	}
	return ch, nil
}

func (s *Store) Channels(ctx context.Context, serverID string) ([]model.Channel, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1`, serverID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check server: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE server_id = $1 ORDER BY created_at, id`,
		serverID)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	out := make([]model.Channel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

func (s *Store) UpdateChannel(ctx context.Context, id, name string) (*model.Channel, error) {
	ch, err := scanChannel(s.pool.QueryRow(ctx,
		`UPDATE channels SET name = $2 WHERE id = $1 RETURNING `+channelColumns, id, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("update channel: %w", err)
	}
	return ch, nil
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT TRUE FROM channels WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock channel: %w", err)
		}
		return deleteChannelTx(ctx, tx, id)
	})
}

// deleteChannelTx removes the channel row and lets the schema cascade through
// messages, reactions, attachments, overwrites, webhooks and any direct
// thread backed by the channel, including its dm-pair lookup entry. Read
// markers are cleared explicitly for both the channel conversation and the
// thread conversation, since conversation ids carry no foreign key.
func deleteChannelTx(ctx context.Context, tx pgx.Tx, id string) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM read_markers WHERE conversation_id = $1
		    OR conversation_id IN (SELECT id FROM direct_threads WHERE channel_id = $1)`, id,
	); err != nil {
		return fmt.Errorf("clear read markers: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

// UpsertOverwrite replaces the allow/deny pair of the (channel, target) slot,
// creating it on first use. The target must exist: a role in the channel's
// server or a member of it.
func (s *Store) UpsertOverwrite(ctx context.Context, params store.UpsertOverwriteParams) (*model.Overwrite, error) {
	var out *model.Overwrite
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var serverID string
		err := tx.QueryRow(ctx,
			`SELECT server_id FROM channels WHERE id = $1`, params.ChannelID).Scan(&serverID)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check channel: %w", err)
		}

		var exists bool
		switch params.TargetType {
		case permission.TargetRole:
			err = tx.QueryRow(ctx,
				`SELECT TRUE FROM roles WHERE id = $1 AND server_id = $2`,
				params.TargetID, serverID).Scan(&exists)
		case permission.TargetMember:
			err = tx.QueryRow(ctx,
				`SELECT TRUE FROM server_members WHERE server_id = $1 AND user_id = $2`,
				serverID, params.TargetID).Scan(&exists)
		default:
			return store.ErrNotFound
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check overwrite target: %w", err)
		}

		ow := model.Overwrite{
			ID:         ident.New(ident.Overwrite),
			ChannelID:  params.ChannelID,
			TargetType: params.TargetType,
			TargetID:   params.TargetID,
			Allow:      params.Allow,
			Deny:       params.Deny,
			CreatedAt:  model.Now(),
		}
		var created time.Time
		// DO UPDATE keeps the id and creation time of the existing slot.
		err = tx.QueryRow(ctx,
			`INSERT INTO channel_overwrites (id, channel_id, target_type, target_id, allow, deny, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (channel_id, target_type, target_id)
			 DO UPDATE SET allow = EXCLUDED.allow, deny = EXCLUDED.deny
			 RETURNING id, created_at`,
			ow.ID, ow.ChannelID, string(ow.TargetType), ow.TargetID,
			int(ow.Allow), int(ow.Deny), ow.CreatedAt.Time,
		).Scan(&ow.ID, &created)
		if err != nil {
			return fmt.Errorf("upsert overwrite: %w", err)
		}
		ow.CreatedAt = model.At(created)
		out = &ow
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Overwrites(ctx context.Context, channelID string) ([]model.Overwrite, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM channels WHERE id = $1`, channelID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check channel: %w", err)
	}
	return overwriteRows(ctx, s.pool, channelID)
}

func overwriteRows(ctx context.Context, q querier, channelID string) ([]model.Overwrite, error) {
	rows, err := q.Query(ctx,
		`SELECT id, channel_id, target_type, target_id, allow, deny, created_at
		 FROM channel_overwrites WHERE channel_id = $1 ORDER BY created_at, id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query overwrites: %w", err)
	}
	defer rows.Close()

	out := make([]model.Overwrite, 0)
	for rows.Next() {
		var ow model.Overwrite
		var allow, deny int
		var created time.Time
		if err := rows.Scan(&ow.ID, &ow.ChannelID, &ow.TargetType, &ow.TargetID, &allow, &deny, &created); err != nil {
			return nil, fmt.Errorf("scan overwrite: %w", err)
		}
		ow.Allow = permission.Set(allow)
		ow.Deny = permission.Set(deny)
		ow.CreatedAt = model.At(created)
		out = append(out, ow)
	}
	return out, rows.Err()
}

func (s *Store) DeleteOverwrite(ctx context.Context, channelID, overwriteID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM channel_overwrites WHERE id = $1 AND channel_id = $2`,
		overwriteID, channelID)
	if err != nil {
		return fmt.Errorf("delete overwrite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
