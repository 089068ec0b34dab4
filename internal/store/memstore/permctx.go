package memstore

import (
	"context"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// PermissionContext assembles the kernel inputs for one (server, user) pair.
// Channel overwrites are included when channelID is non-empty; the channel
// must then belong to the server.
func (s *Store) PermissionContext(ctx context.Context, serverID, userID, channelID string) (*store.PermissionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissionContextLocked(serverID, userID, channelID)
}

func (s *Store) permissionContextLocked(serverID, userID, channelID string) (*store.PermissionContext, error) {
	srv, ok := s.servers[serverID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if channelID != "" {
		ch, ok := s.channels[channelID]
		if !ok || ch.ServerID != serverID {
			return nil, store.ErrNotFound
		}
	}

	pc := &store.PermissionContext{OwnerID: srv.OwnerID}

	state, isMember := s.members[serverID][userID]
	pc.IsMember = isMember
	if isMember {
		if def := s.defaultRoleLocked(serverID); def != nil {
			pc.Roles = append(pc.Roles, permission.RoleGrant{ID: def.ID, Grants: def.Permissions})
		}
		for roleID := range state.roles {
			if r, ok := s.roles[roleID]; ok {
				pc.Roles = append(pc.Roles, permission.RoleGrant{ID: r.ID, Grants: r.Permissions})
			}
		}
	}

	if channelID != "" {
		for _, ow := range s.overwritesLocked(channelID) {
			pc.Overwrites = append(pc.Overwrites, permission.Overwrite{
				TargetType: ow.TargetType,
				TargetID:   ow.TargetID,
				Allow:      ow.Allow,
				Deny:       ow.Deny,
			})
		}
	}

	_, pc.Banned = s.bans[serverID][userID]
	pc.TimedOut = s.activeTimeoutLocked(serverID, userID)
	return pc, nil
}

func (s *Store) defaultRoleLocked(serverID string) *model.Role {
	for _, r := range s.roles {
		if r.ServerID == serverID && r.IsDefault {
			return r
		}
	}
	return nil
}

// canReadLocked reports whether the user may read the given channel.
func (s *Store) canReadLocked(ch *model.Channel, userID string) bool {
	pc, err := s.permissionContextLocked(ch.ServerID, userID, ch.ID)
	if err != nil {
		return false
	}
	if !pc.IsMember && pc.OwnerID != userID {
		return false
	}
	return permission.Allows(pc.Query(userID), permission.ReadMessages)
}
