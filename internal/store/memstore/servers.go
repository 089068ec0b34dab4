package memstore

import (
	"context"
	"sort"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// DefaultRoleName is the name of the immutable default role every server is
// born with.
const DefaultRoleName = "@everyone"

func (s *Store) CreateServer(ctx context.Context, ownerID, name string) (*model.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createServerLocked(ownerID, name, false)
}

// createServerLocked seeds the default role, an Owner role holding every
// capability, and the owner's membership with that role assigned.
func (s *Store) createServerLocked(ownerID, name string, hidden bool) (*model.Server, error) {
	if _, ok := s.users[ownerID]; !ok {
		return nil, store.ErrNotFound
	}

	now := model.Now()
	srv := &model.Server{
		ID:        ident.New(ident.Server),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		Hidden:    hidden,
	}
	s.servers[srv.ID] = srv
	s.members[srv.ID] = make(map[string]*memberState)

	def := &model.Role{
		ID:          ident.New(ident.Role),
		ServerID:    srv.ID,
		Name:        DefaultRoleName,
		Permissions: permission.Of(permission.ReadMessages, permission.SendMessages),
		IsDefault:   true,
		CreatedAt:   now,
	}
	owner := &model.Role{
		ID:          ident.New(ident.Role),
		ServerID:    srv.ID,
		Name:        "Owner",
		Permissions: permission.AllSet,
		CreatedAt:   now,
	}
	s.roles[def.ID] = def
	s.roles[owner.ID] = owner

	s.members[srv.ID][ownerID] = &memberState{
		joinedAt: now,
		roles:    map[string]struct{}{owner.ID: {}},
	}

	cp := *srv
	return &cp, nil
}

func (s *Store) ServerByID(ctx context.Context, id string) (*model.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *srv
	return &cp, nil
}

// ServersForUser lists the visible servers the user belongs to; servers
// backing direct threads stay hidden.
func (s *Store) ServersForUser(ctx context.Context, userID string) ([]model.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Server, 0)
	for serverID, srv := range s.servers {
		if srv.Hidden {
			continue
		}
		if _, ok := s.members[serverID][userID]; ok {
			out = append(out, *srv)
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

func (s *Store) DeleteServer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[id]; !ok {
		return store.ErrNotFound
	}
	s.deleteServerLocked(id)
	return nil
}

// deleteServerLocked cascades through channels (which in turn clear
// messages, reactions, overwrites, markers, webhooks and any thread backed
// by them), roles, members, invites, bans, timeouts, audit entries and
// appeals.
func (s *Store) deleteServerLocked(id string) {
	var channelIDs []string
	for channelID, ch := range s.channels {
		if ch.ServerID == id {
			channelIDs = append(channelIDs, channelID)
		}
	}
	for _, channelID := range channelIDs {
		s.deleteChannelLocked(channelID)
	}

	for roleID, r := range s.roles {
		if r.ServerID == id {
			delete(s.roles, roleID)
		}
	}
	for code, inv := range s.invites {
		if inv.ServerID == id {
			delete(s.invites, code)
		}
	}
	for appealID, a := range s.appeals {
		if a.ServerID == id {
			delete(s.appeals, appealID)
		}
	}
	delete(s.members, id)
	delete(s.bans, id)
	delete(s.timeouts, id)
	delete(s.audit, id)
	delete(s.servers, id)
}

func (s *Store) AddMember(ctx context.Context, serverID, userID string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addMemberLocked(serverID, userID); err != nil {
		return nil, err
	}
	return s.memberLocked(serverID, userID)
}

// addMemberLocked is idempotent and refuses banned users.
func (s *Store) addMemberLocked(serverID, userID string) error {
	if _, ok := s.servers[serverID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return store.ErrNotFound
	}
	if _, banned := s.bans[serverID][userID]; banned {
		return store.ErrBanned
	}
	if _, ok := s.members[serverID][userID]; ok {
		return nil
	}
	s.members[serverID][userID] = &memberState{
		joinedAt: model.Now(),
		roles:    make(map[string]struct{}),
	}
	return nil
}

func (s *Store) Member(ctx context.Context, serverID, userID string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memberLocked(serverID, userID)
}

func (s *Store) memberLocked(serverID, userID string) (*model.Member, error) {
	state, ok := s.members[serverID][userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return materializeMember(serverID, userID, state), nil
}

func materializeMember(serverID, userID string, state *memberState) *model.Member {
	roleIDs := make([]string, 0, len(state.roles))
	for roleID := range state.roles {
		roleIDs = append(roleIDs, roleID)
	}
	sort.Strings(roleIDs)
	return &model.Member{
		ServerID: serverID,
		UserID:   userID,
		JoinedAt: state.joinedAt,
		RoleIDs:  roleIDs,
	}
}

func (s *Store) Members(ctx context.Context, serverID string) ([]model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]model.Member, 0, len(s.members[serverID]))
	for userID, state := range s.members[serverID] {
		out = append(out, *materializeMember(serverID, userID, state))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt.Time) {
			return out[i].JoinedAt.Before(out[j].JoinedAt.Time)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *Store) RemoveMember(ctx context.Context, serverID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[serverID][userID]; !ok {
		return store.ErrNotFound
	}
	s.removeMemberLocked(serverID, userID)
	return nil
}

// removeMemberLocked drops the membership with its role assignments and any
// active timeout.
func (s *Store) removeMemberLocked(serverID, userID string) {
	delete(s.members[serverID], userID)
	delete(s.timeouts[serverID], userID)
}
