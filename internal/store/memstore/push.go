package memstore

import (
	"context"
	"sort"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// CreatePushSubscription registers a push endpoint. Re-registering an
// endpoint the user already holds refreshes its keys under the same id.
func (s *Store) CreatePushSubscription(ctx context.Context, params store.CreatePushParams) (*model.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[params.UserID]; !ok {
		return nil, store.ErrNotFound
	}

	slot := params.UserID + "|" + params.Endpoint
	if id, ok := s.pushSlots[slot]; ok {
		sub := s.pushSubs[id]
		sub.P256dh = params.P256dh
		sub.Auth = params.Auth
		sub.UserAgent = params.UserAgent
		sub.UpdatedAt = model.Now()
		cp := *sub
		return &cp, nil
	}

	now := model.Now()
	sub := &model.PushSubscription{
		ID:        ident.New(ident.Push),
		UserID:    params.UserID,
		Endpoint:  params.Endpoint,
		P256dh:    params.P256dh,
		Auth:      params.Auth,
		UserAgent: params.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.pushSubs[sub.ID] = sub
	s.pushSlots[slot] = sub.ID
	cp := *sub
	return &cp, nil
}

func (s *Store) PushSubscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.PushSubscription, 0)
	for _, sub := range s.pushSubs {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.Before(out[j].CreatedAt.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeletePushSubscription removes one of the user's subscriptions. Deleting a
// subscription that is absent or belongs to someone else is a no-op.
func (s *Store) DeletePushSubscription(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.pushSubs[id]
	if !ok || sub.UserID != userID {
		return nil
	}
	delete(s.pushSubs, id)
	delete(s.pushSlots, sub.UserID+"|"+sub.Endpoint)
	return nil
}
