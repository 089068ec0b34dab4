package memstore

import (
	"context"
	"time"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// SetPresence records a heartbeat. Online, idle and dnd expire after ttl;
// offline sticks until the next heartbeat.
func (s *Store) SetPresence(ctx context.Context, userID string, status model.PresenceStatus, ttl time.Duration) (*model.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, store.ErrNotFound
	}

	p := &model.Presence{
		UserID:     userID,
		Status:     status,
		LastSeenAt: model.Now(),
	}
	if status != model.PresenceOffline {
		p.ExpiresAt = model.At(ident.Now().Add(ttl))
	}
	s.presences[userID] = p
	cp := *p
	return &cp, nil
}

func (s *Store) PresenceByUser(ctx context.Context, userID string) (*model.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, store.ErrNotFound
	}
	return s.presenceLocked(userID), nil
}

// presenceLocked applies lazy expiry: an overdue record flips to offline in
// place before it is returned.
func (s *Store) presenceLocked(userID string) *model.Presence {
	p, ok := s.presences[userID]
	if !ok {
		return &model.Presence{UserID: userID, Status: model.PresenceOffline}
	}
	if p.Status != model.PresenceOffline && !p.ExpiresAt.IsZero() && !p.ExpiresAt.After(ident.Now()) {
		p.Status = model.PresenceOffline
		p.ExpiresAt = model.Timestamp{}
	}
	cp := *p
	return &cp
}

func (s *Store) PresenceBulk(ctx context.Context, userIDs []string) ([]model.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Presence, 0, len(userIDs))
	for _, userID := range userIDs {
		if _, ok := s.users[userID]; !ok {
			continue
		}
		out = append(out, *s.presenceLocked(userID))
	}
	return out, nil
}

// SweepPresences flips every overdue record to offline and returns the ones
// it flipped so the caller can fan the changes out.
func (s *Store) SweepPresences(ctx context.Context) ([]model.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := ident.Now()
	flipped := make([]model.Presence, 0)
	for _, p := range s.presences {
		if p.Status == model.PresenceOffline || p.ExpiresAt.IsZero() || p.ExpiresAt.After(now) {
			continue
		}
		p.Status = model.PresenceOffline
		p.ExpiresAt = model.Timestamp{}
		flipped = append(flipped, *p)
	}
	return flipped, nil
}
