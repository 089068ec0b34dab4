package memstore

import (
	"context"
	"sort"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func (s *Store) CreateRole(ctx context.Context, serverID, name string, grants permission.Set) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, store.ErrNotFound
	}
	r := &model.Role{
		ID:          ident.New(ident.Role),
		ServerID:    serverID,
		Name:        name,
		Permissions: grants,
		CreatedAt:   model.Now(),
	}
	s.roles[r.ID] = r
	cp := *r
	return &cp, nil
}

// Roles lists a server's roles, default role first, then by creation order.
func (s *Store) Roles(ctx context.Context, serverID string) ([]model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]model.Role, 0)
	for _, r := range s.roles {
		if r.ServerID == serverID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.Before(out[j].CreatedAt.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateRole(ctx context.Context, serverID, roleID string, params store.UpdateRoleParams) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[roleID]
	if !ok || r.ServerID != serverID {
		return nil, store.ErrNotFound
	}
	if r.IsDefault && params.Name != nil {
		return nil, store.ErrImmutableRole
	}
	if params.Name != nil {
		r.Name = *params.Name
	}
	if params.Permissions != nil {
		r.Permissions = *params.Permissions
	}
	cp := *r
	return &cp, nil
}

// DeleteRole removes the role, its assignments and any overwrites targeting
// it. The default role is not deletable.
func (s *Store) DeleteRole(ctx context.Context, serverID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[roleID]
	if !ok || r.ServerID != serverID {
		return store.ErrNotFound
	}
	if r.IsDefault {
		return store.ErrImmutableRole
	}

	for _, state := range s.members[serverID] {
		delete(state.roles, roleID)
	}
	for owID, ow := range s.overwrites {
		if ow.TargetType == permission.TargetRole && ow.TargetID == roleID {
			delete(s.owSlots, owSlotKey(ow.ChannelID, ow.TargetType, ow.TargetID))
			delete(s.overwrites, owID)
		}
	}
	delete(s.roles, roleID)
	return nil
}

// AssignRole is idempotent.
func (s *Store) AssignRole(ctx context.Context, serverID, userID, roleID string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.members[serverID][userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	r, ok := s.roles[roleID]
	if !ok || r.ServerID != serverID {
		return nil, store.ErrNotFound
	}
	state.roles[roleID] = struct{}{}
	return materializeMember(serverID, userID, state), nil
}

// UnassignRole removing an unassigned role is a no-op.
func (s *Store) UnassignRole(ctx context.Context, serverID, userID, roleID string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.members[serverID][userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(state.roles, roleID)
	return materializeMember(serverID, userID, state), nil
}
