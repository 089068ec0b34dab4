package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func (s *Store) Friends(ctx context.Context, userID string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.User, 0, len(s.friends[userID]))
	for friendID := range s.friends[userID] {
		if u, ok := s.users[friendID]; ok {
			out = append(out, *cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Username), strings.ToLower(out[j].Username)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RemoveFriend deletes both directions of the friendship and any pending
// request between the pair. Removing a non-friend is a no-op.
func (s *Store) RemoveFriend(ctx context.Context, userID, friendID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.friends[userID], friendID)
	delete(s.friends[friendID], userID)
	for reqID, req := range s.friendRequests {
		if req.Status != model.FriendRequestPending {
			continue
		}
		if (req.FromUserID == userID && req.ToUserID == friendID) ||
			(req.FromUserID == friendID && req.ToUserID == userID) {
			delete(s.friendRequests, reqID)
		}
	}
	return nil
}

func (s *Store) CreateFriendRequest(ctx context.Context, fromUserID, toUserID string) (*model.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[toUserID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.friends[fromUserID][toUserID]; ok {
		return nil, store.ErrAlreadyFriends
	}
	for _, req := range s.friendRequests {
		if req.Status != model.FriendRequestPending {
			continue
		}
		samePair := (req.FromUserID == fromUserID && req.ToUserID == toUserID) ||
			(req.FromUserID == toUserID && req.ToUserID == fromUserID)
		if samePair {
			return nil, store.ErrRequestPending
		}
	}

	now := model.Now()
	req := &model.FriendRequest{
		ID:         ident.New(ident.FriendRequest),
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     model.FriendRequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.friendRequests[req.ID] = req
	cp := *req
	return &cp, nil
}

func (s *Store) FriendRequests(ctx context.Context, userID string) (incoming, outgoing []model.FriendRequest, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming = make([]model.FriendRequest, 0)
	outgoing = make([]model.FriendRequest, 0)
	for _, req := range s.friendRequests {
		if req.Status != model.FriendRequestPending {
			continue
		}
		switch userID {
		case req.ToUserID:
			incoming = append(incoming, *req)
		case req.FromUserID:
			outgoing = append(outgoing, *req)
		}
	}
	byAge := func(list []model.FriendRequest) func(i, j int) bool {
		return func(i, j int) bool {
			if !list[i].CreatedAt.Equal(list[j].CreatedAt.Time) {
				return list[i].CreatedAt.Before(list[j].CreatedAt.Time)
			}
			return list[i].ID < list[j].ID
		}
	}
	sort.Slice(incoming, byAge(incoming))
	sort.Slice(outgoing, byAge(outgoing))
	return incoming, outgoing, nil
}

// RespondFriendRequest closes a pending request. Only the recipient of a
// still-pending request may respond; anything else reads as not found.
// Accepting inserts the symmetric friendship.
func (s *Store) RespondFriendRequest(ctx context.Context, requestID, responderID string, accept bool) (*model.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.friendRequests[requestID]
	if !ok || req.ToUserID != responderID || req.Status != model.FriendRequestPending {
		return nil, store.ErrNotFound
	}

	req.UpdatedAt = model.Now()
	if accept {
		req.Status = model.FriendRequestAccepted
		s.addFriendLocked(req.FromUserID, req.ToUserID)
	} else {
		req.Status = model.FriendRequestRejected
	}
	cp := *req
	return &cp, nil
}

func (s *Store) addFriendLocked(a, b string) {
	if s.friends[a] == nil {
		s.friends[a] = make(map[string]struct{})
	}
	if s.friends[b] == nil {
		s.friends[b] = make(map[string]struct{})
	}
	s.friends[a][b] = struct{}{}
	s.friends[b][a] = struct{}{}
}
