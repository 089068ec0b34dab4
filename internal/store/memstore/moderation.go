package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// Moderate applies one moderation verb, mutates the member and ban sets
// accordingly and appends an audit entry, all in one critical section.
func (s *Store) Moderate(ctx context.Context, params store.ModerationParams) (*model.ModerationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[params.ServerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if params.TargetUserID == srv.OwnerID {
		return nil, store.ErrModerateOwner
	}

	now := model.Now()
	action := &model.ModerationAction{
		ID:           ident.New(ident.Moderation),
		ServerID:     params.ServerID,
		ActorID:      params.ActorID,
		TargetUserID: params.TargetUserID,
		ActionType:   params.Action,
		Reason:       params.Reason,
		CreatedAt:    now,
	}

	switch params.Action {
	case model.ModerationKick:
		if _, member := s.members[params.ServerID][params.TargetUserID]; !member {
			return nil, store.ErrNotFound
		}
		s.removeMemberLocked(params.ServerID, params.TargetUserID)

	case model.ModerationBan:
		if s.bans[params.ServerID] == nil {
			s.bans[params.ServerID] = make(map[string]*model.Ban)
		}
		s.bans[params.ServerID][params.TargetUserID] = &model.Ban{
			ServerID:  params.ServerID,
			UserID:    params.TargetUserID,
			Reason:    params.Reason,
			CreatedBy: params.ActorID,
			CreatedAt: now,
		}
		if _, member := s.members[params.ServerID][params.TargetUserID]; member {
			s.removeMemberLocked(params.ServerID, params.TargetUserID)
		}

	case model.ModerationTimeout:
		if params.ExpiresAt == nil {
			return nil, store.ErrTimeoutExpiry
		}
		if _, member := s.members[params.ServerID][params.TargetUserID]; !member {
			return nil, store.ErrNotFound
		}
		if s.timeouts[params.ServerID] == nil {
			s.timeouts[params.ServerID] = make(map[string]time.Time)
		}
		s.timeouts[params.ServerID][params.TargetUserID] = params.ExpiresAt.UTC()
		action.ExpiresAt = model.At(*params.ExpiresAt)

	case model.ModerationUnban:
		if _, banned := s.bans[params.ServerID][params.TargetUserID]; !banned {
			return nil, store.ErrNotFound
		}
		delete(s.bans[params.ServerID], params.TargetUserID)

	default:
		return nil, store.ErrNotFound
	}

	s.appendAuditLocked(params.ServerID, params.ActorID, params.TargetUserID, string(params.Action), params.Reason, nil)
	cp := *action
	return &cp, nil
}

func (s *Store) appendAuditLocked(serverID, actorID, targetUserID, actionType, reason string, metadata map[string]any) {
	s.audit[serverID] = append(s.audit[serverID], &model.AuditLogEntry{
		ID:           ident.New(ident.Audit),
		ServerID:     serverID,
		ActorID:      actorID,
		TargetUserID: targetUserID,
		ActionType:   actionType,
		Reason:       reason,
		Metadata:     metadata,
		CreatedAt:    model.Now(),
	})
}

func (s *Store) Bans(ctx context.Context, serverID string) ([]model.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]model.Ban, 0, len(s.bans[serverID]))
	for _, b := range s.bans[serverID] {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.Before(out[j].CreatedAt.Time)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *Store) IsBanned(ctx context.Context, serverID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, banned := s.bans[serverID][userID]
	return banned, nil
}

// ActiveTimeout reports whether the user is currently timed out. An expired
// timeout is removed on observation.
func (s *Store) ActiveTimeout(ctx context.Context, serverID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.activeTimeoutLocked(serverID, userID), nil
}

func (s *Store) activeTimeoutLocked(serverID, userID string) bool {
	expiry, ok := s.timeouts[serverID][userID]
	if !ok {
		return false
	}
	if !expiry.After(ident.Now()) {
		delete(s.timeouts[serverID], userID)
		return false
	}
	return true
}

// AuditLog lists the server's audit entries newest first.
func (s *Store) AuditLog(ctx context.Context, serverID string, limit int) ([]model.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, store.ErrNotFound
	}
	entries := s.audit[serverID]
	limit = store.ClampLimit(limit, store.MaxMessageLimit)

	out := make([]model.AuditLogEntry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *entries[i]
		if entries[i].Metadata != nil {
			cp.Metadata = make(map[string]any, len(entries[i].Metadata))
			for k, v := range entries[i].Metadata {
				cp.Metadata[k] = v
			}
		}
		out = append(out, cp)
	}
	return out, nil
}
