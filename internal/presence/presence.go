// Package presence tracks user availability. Statuses are written through
// the store with a TTL that heartbeats refresh; a background sweeper flips
// stale records to offline. Changes fan out to the subject and their
// friends only.
package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// Broadcaster fans one event out to every socket of the listed users. It is
// satisfied by *gateway.Hub.
type Broadcaster interface {
	Publish(conversationID, eventType string, payload any, userIDs ...string)
}

// Tracker applies presence heartbeats and owns the offline sweeper.
type Tracker struct {
	store store.Store
	hub   Broadcaster
	ttl   time.Duration
	log   zerolog.Logger
}

// NewTracker creates a tracker writing presence records with the given TTL.
func NewTracker(st store.Store, hub Broadcaster, ttl time.Duration, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store: st,
		hub:   hub,
		ttl:   ttl,
		log:   logger.With().Str("component", "presence").Logger(),
	}
}

// Set records a heartbeat. The store refreshes the record's expiry; the
// change fans out only when the visible status actually changed, so
// periodic heartbeats do not spam friends.
func (t *Tracker) Set(ctx context.Context, userID string, status model.PresenceStatus) (*model.Presence, error) {
	prev, err := t.store.PresenceByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := t.store.SetPresence(ctx, userID, status, t.ttl)
	if err != nil {
		return nil, err
	}
	if prev.Status != p.Status {
		t.broadcast(ctx, p)
	}
	return p, nil
}

// Run flips silent users to offline until ctx is cancelled. Sweeps happen
// at half the TTL, so a client that stops heartbeating is observed offline
// at most one and a half TTLs after its last beat.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// Sweep performs one sweep pass, fanning out every record it flipped.
func (t *Tracker) Sweep(ctx context.Context) {
	flipped, err := t.store.SweepPresences(ctx)
	if err != nil {
		t.log.Warn().Err(err).Msg("Presence sweep failed")
		return
	}
	for i := range flipped {
		t.broadcast(ctx, &flipped[i])
	}
}

// broadcast sends presence.updated to the subject and their friends. It is
// best-effort: a failed friend lookup still notifies the subject's own
// sockets.
func (t *Tracker) broadcast(ctx context.Context, p *model.Presence) {
	targets := []string{p.UserID}
	friends, err := t.store.Friends(ctx, p.UserID)
	if err != nil {
		t.log.Warn().Err(err).Str("user_id", p.UserID).Msg("Friend lookup failed during presence fanout")
	} else {
		for _, f := range friends {
			targets = append(targets, f.ID)
		}
	}
	t.hub.Publish("", gateway.EventPresenceUpdated, p, targets...)
}
