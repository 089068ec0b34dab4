package memstore

import (
	"context"
	"sort"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func (s *Store) CreateInvite(ctx context.Context, params store.CreateInviteParams) (*model.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[params.ServerID]; !ok {
		return nil, store.ErrNotFound
	}

	code := ident.NewInviteCode()
	for _, taken := s.invites[code]; taken; _, taken = s.invites[code] {
		code = ident.NewInviteCode()
	}

	inv := &model.Invite{
		Code:      code,
		ServerID:  params.ServerID,
		CreatedBy: params.CreatedBy,
		CreatedAt: model.Now(),
		MaxUses:   params.MaxUses,
	}
	if params.ExpiresAt != nil {
		inv.ExpiresAt = model.At(*params.ExpiresAt)
	}
	s.invites[code] = inv
	cp := *inv
	return &cp, nil
}

func (s *Store) Invites(ctx context.Context, serverID string) ([]model.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]model.Invite, 0)
	for _, inv := range s.invites {
		if inv.ServerID == serverID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.Before(out[j].CreatedAt.Time)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (s *Store) DeleteInvite(ctx context.Context, serverID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[code]
	if !ok || inv.ServerID != serverID {
		return store.ErrNotFound
	}
	delete(s.invites, code)
	return nil
}

// JoinByInvite validates the code, inserts the membership and increments the
// use counter in one critical section. Unknown, expired and exhausted codes
// and banned callers all read as the same invalid-invite error so codes
// cannot be probed. Joining a server the caller already belongs to returns
// the server without consuming a use.
func (s *Store) JoinByInvite(ctx context.Context, code, userID string) (*model.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[code]
	if !ok {
		return nil, store.ErrInviteInvalid
	}
	srv, ok := s.servers[inv.ServerID]
	if !ok {
		return nil, store.ErrInviteInvalid
	}
	if _, banned := s.bans[inv.ServerID][userID]; banned {
		return nil, store.ErrInviteInvalid
	}
	if _, member := s.members[inv.ServerID][userID]; member {
		cp := *srv
		return &cp, nil
	}
	if !inv.ExpiresAt.IsZero() && !inv.ExpiresAt.After(ident.Now()) {
		return nil, store.ErrInviteInvalid
	}
	if inv.MaxUses > 0 && inv.Uses >= inv.MaxUses {
		return nil, store.ErrInviteInvalid
	}

	if err := s.addMemberLocked(inv.ServerID, userID); err != nil {
		return nil, err
	}
	inv.Uses++
	cp := *srv
	return &cp, nil
}
