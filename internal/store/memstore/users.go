package memstore

import (
	"context"
	"strings"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func cloneUser(u *model.User) *model.User {
	cp := *u
	return &cp
}

func (s *Store) CreateUser(ctx context.Context, params store.CreateUserParams) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(params)
}

func (s *Store) createUserLocked(params store.CreateUserParams) (*model.User, error) {
	uname := strings.ToLower(params.Username)
	if _, taken := s.usernameIndex[uname]; taken {
		return nil, store.ErrUsernameTaken
	}
	email := strings.ToLower(params.Email)
	if _, taken := s.emailIndex[email]; taken {
		return nil, store.ErrEmailTaken
	}

	u := &model.User{
		ID:           ident.New(ident.User),
		Email:        email,
		Username:     params.Username,
		DisplayName:  params.DisplayName,
		Bot:          params.Bot,
		CreatedAt:    model.Now(),
		PasswordHash: params.PasswordHash,
	}
	s.users[u.ID] = u
	s.emailIndex[email] = u.ID
	s.usernameIndex[uname] = u.ID
	return cloneUser(u), nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emailIndex[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usernameIndex[strings.ToLower(username)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) UpdateUserTOTP(ctx context.Context, userID, secret string, enabled bool) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	u.TOTPSecret = secret
	u.TOTPEnabled = enabled
	return cloneUser(u), nil
}

// DeleteUser removes the account and everything hanging off it: sessions,
// push subscriptions, presence, friendships and requests, thread
// participations (with backing-server garbage collection), memberships, and
// every server the user owns. Authored messages stay behind with a dangling
// authorId.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}

	for token, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, token)
		}
	}
	for subID, sub := range s.pushSubs {
		if sub.UserID == id {
			delete(s.pushSlots, sub.UserID+"|"+sub.Endpoint)
			delete(s.pushSubs, subID)
		}
	}
	delete(s.presences, id)

	for friendID := range s.friends[id] {
		delete(s.friends[friendID], id)
	}
	delete(s.friends, id)
	for reqID, req := range s.friendRequests {
		if req.FromUserID == id || req.ToUserID == id {
			delete(s.friendRequests, reqID)
		}
	}

	var joined []string
	for threadID, t := range s.threads {
		for _, pid := range t.ParticipantIDs {
			if pid == id {
				joined = append(joined, threadID)
				break
			}
		}
	}
	for _, threadID := range joined {
		s.leaveThreadLocked(s.threads[threadID], id)
	}

	var owned, memberOf []string
	for serverID, srv := range s.servers {
		if srv.OwnerID == id {
			owned = append(owned, serverID)
		} else if _, ok := s.members[serverID][id]; ok {
			memberOf = append(memberOf, serverID)
		}
	}
	for _, serverID := range owned {
		s.deleteServerLocked(serverID)
	}
	for _, serverID := range memberOf {
		s.removeMemberLocked(serverID, id)
	}

	for serverID := range s.bans {
		delete(s.bans[serverID], id)
	}
	for appealID, a := range s.appeals {
		if a.UserID == id {
			delete(s.appeals, appealID)
		}
	}

	u := s.users[id]
	delete(s.emailIndex, u.Email)
	delete(s.usernameIndex, strings.ToLower(u.Username))
	delete(s.users, id)
	return nil
}

func (s *Store) CreateSession(ctx context.Context, userID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSessionLocked(userID)
}

func (s *Store) createSessionLocked(userID string) (*model.Session, error) {
	if _, ok := s.users[userID]; !ok {
		return nil, store.ErrNotFound
	}
	sess := &model.Session{
		Token:     ident.NewToken(),
		UserID:    userID,
		CreatedAt: model.Now(),
	}
	s.sessions[sess.Token] = sess
	cp := *sess
	return &cp, nil
}

func (s *Store) SessionUser(ctx context.Context, token string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	u, ok := s.users[sess.UserID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}
