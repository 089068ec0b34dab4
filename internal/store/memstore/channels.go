package memstore

import (
	"context"
	"sort"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func owSlotKey(channelID string, targetType permission.TargetType, targetID string) string {
	return channelID + "|" + string(targetType) + "|" + targetID
}

func (s *Store) CreateChannel(ctx context.Context, serverID, name string, channelType model.ChannelType) (*model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createChannelLocked(serverID, name, channelType)
}

func (s *Store) createChannelLocked(serverID, name string, channelType model.ChannelType) (*model.Channel, error) {
	if _, ok := s.servers[serverID]; !ok {
		return nil, store.ErrNotFound
	}
	ch := &model.Channel{
		ID:        ident.New(ident.Channel),
		ServerID:  serverID,
		Name:      name,
		Type:      channelType,
		CreatedAt: model.Now(),
	}
	s.channels[ch.ID] = ch
	cp := *ch
	return &cp, nil
}

func (s *Store) ChannelByID(ctx context.Context, id string) (*model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (s *Store) Channels(ctx context.Context, serverID string) ([]model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]model.Channel, 0)
	for _, ch := range s.channels {
		if ch.ServerID == serverID {
			out = append(out, *ch)
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

func (s *Store) UpdateChannel(ctx context.Context, id, name string) (*model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	ch.Name = name
	cp := *ch
	return &cp, nil
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[id]; !ok {
		return store.ErrNotFound
	}
	s.deleteChannelLocked(id)
	return nil
}

// deleteChannelLocked clears the channel's messages, reactions, overwrites,
// read markers and webhooks. When the channel backs a direct thread, the
// thread and its dm-pair lookup entry go with it; the channel itself is
// removed last so mid-cascade readers still resolve it.
func (s *Store) deleteChannelLocked(id string) {
	conversations := []string{id}
	if threadID, ok := s.threadByChannel[id]; ok {
		conversations = append(conversations, threadID)
	}

	for _, conversationID := range conversations {
		for _, messageID := range s.convIndex[conversationID] {
			delete(s.reactions, messageID)
			delete(s.messages, messageID)
		}
		delete(s.convIndex, conversationID)
		for key, m := range s.markers {
			if m.ConversationID == conversationID {
				delete(s.markers, key)
			}
		}
	}

	for owID, ow := range s.overwrites {
		if ow.ChannelID == id {
			delete(s.owSlots, owSlotKey(ow.ChannelID, ow.TargetType, ow.TargetID))
			delete(s.overwrites, owID)
		}
	}
	for webhookID, wh := range s.webhooks {
		if wh.ChannelID == id {
			delete(s.webhooks, webhookID)
		}
	}

	if threadID, ok := s.threadByChannel[id]; ok {
		if t, exists := s.threads[threadID]; exists && t.Kind == model.ThreadDM && len(t.ParticipantIDs) == 2 {
			delete(s.dmPairs, pairKey(t.ParticipantIDs[0], t.ParticipantIDs[1]))
		}
		delete(s.threads, threadID)
		delete(s.threadByChannel, id)
	}

	delete(s.channels, id)
}

// UpsertOverwrite replaces the allow/deny pair of the (channel, target) slot,
// creating it on first use. The target must exist: a role in the channel's
// server or a member of it.
func (s *Store) UpsertOverwrite(ctx context.Context, params store.UpsertOverwriteParams) (*model.Overwrite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[params.ChannelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	switch params.TargetType {
	case permission.TargetRole:
		r, ok := s.roles[params.TargetID]
		if !ok || r.ServerID != ch.ServerID {
			return nil, store.ErrNotFound
		}
	case permission.TargetMember:
		if _, ok := s.members[ch.ServerID][params.TargetID]; !ok {
			return nil, store.ErrNotFound
		}
	default:
		return nil, store.ErrNotFound
	}

	key := owSlotKey(params.ChannelID, params.TargetType, params.TargetID)
	if owID, ok := s.owSlots[key]; ok {
		ow := s.overwrites[owID]
		ow.Allow = params.Allow
		ow.Deny = params.Deny
		cp := *ow
		return &cp, nil
	}

	ow := &model.Overwrite{
		ID:         ident.New(ident.Overwrite),
		ChannelID:  params.ChannelID,
		TargetType: params.TargetType,
		TargetID:   params.TargetID,
		Allow:      params.Allow,
		Deny:       params.Deny,
		CreatedAt:  model.Now(),
	}
	s.overwrites[ow.ID] = ow
	s.owSlots[key] = ow.ID
	cp := *ow
	return &cp, nil
}

func (s *Store) Overwrites(ctx context.Context, channelID string) ([]model.Overwrite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[channelID]; !ok {
		return nil, store.ErrNotFound
	}
	return s.overwritesLocked(channelID), nil
}

func (s *Store) overwritesLocked(channelID string) []model.Overwrite {
	out := make([]model.Overwrite, 0)
	for _, ow := range s.overwrites {
		if ow.ChannelID == channelID {
			out = append(out, *ow)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.Before(out[j].CreatedAt.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) DeleteOverwrite(ctx context.Context, channelID, overwriteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ow, ok := s.overwrites[overwriteID]
	if !ok || ow.ChannelID != channelID {
		return store.ErrNotFound
	}
	delete(s.owSlots, owSlotKey(ow.ChannelID, ow.TargetType, ow.TargetID))
	delete(s.overwrites, overwriteID)
	return nil
}
