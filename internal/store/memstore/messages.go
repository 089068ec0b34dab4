package memstore

import (
	"context"
	"slices"
	"sort"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// cloneMessage copies the stored message and attaches its current reaction
// summary. Attachments and Reactions are always non-nil so they encode as
// arrays.
func (s *Store) cloneMessage(m *model.Message) *model.Message {
	cp := *m
	cp.Attachments = slices.Clone(m.Attachments)
	if cp.Attachments == nil {
		cp.Attachments = []model.Attachment{}
	}
	cp.Reactions = s.reactionSummaryLocked(m.ID)
	return &cp
}

// reactionSummaryLocked aggregates the message's reactions ordered by emoji,
// omitting emoji nobody holds anymore.
func (s *Store) reactionSummaryLocked(messageID string) []model.ReactionSummary {
	byEmoji := s.reactions[messageID]
	emojis := make([]string, 0, len(byEmoji))
	for emoji, users := range byEmoji {
		if len(users) > 0 {
			emojis = append(emojis, emoji)
		}
	}
	sort.Strings(emojis)
	out := make([]model.ReactionSummary, 0, len(emojis))
	for _, emoji := range emojis {
		out = append(out, model.ReactionSummary{Emoji: emoji, Count: len(byEmoji[emoji])})
	}
	return out
}

func (s *Store) CreateMessage(ctx context.Context, params store.CreateMessageParams) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channelID := params.ChannelID
	conversationID := channelID
	if params.DirectThreadID != "" {
		t, ok := s.threads[params.DirectThreadID]
		if !ok {
			return nil, store.ErrNotFound
		}
		channelID = t.ChannelID
		conversationID = t.ID
	} else if _, ok := s.channels[channelID]; !ok {
		return nil, store.ErrNotFound
	}

	if params.ReplyToID != "" {
		target, ok := s.messages[params.ReplyToID]
		if !ok || target.ConversationID != conversationID {
			return nil, store.ErrReplyNotFound
		}
	}

	m := &model.Message{
		ID:             ident.New(ident.Message),
		ChannelID:      channelID,
		ConversationID: conversationID,
		DirectThreadID: params.DirectThreadID,
		AuthorID:       params.AuthorID,
		Body:           params.Body,
		Attachments:    slices.Clone(params.Attachments),
		ReplyToID:      params.ReplyToID,
		CreatedAt:      model.Now(),
	}
	s.messages[m.ID] = m
	s.convIndex[conversationID] = append(s.convIndex[conversationID], m.ID)

	// A new thread message bumps the thread so listings reorder.
	if params.DirectThreadID != "" {
		s.threads[params.DirectThreadID].UpdatedAt = m.CreatedAt
	}

	return s.cloneMessage(m), nil
}

func (s *Store) MessageByID(ctx context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.cloneMessage(m), nil
}

// ListMessages returns a window of the conversation in ascending
// (createdAt, id) order. The convIndex slice is already ascending because
// ids append in mint order under the monotonic clock.
func (s *Store) ListMessages(ctx context.Context, params store.ListMessagesParams) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conversationExistsLocked(params.ConversationID) {
		return nil, store.ErrNotFound
	}

	ids := s.convIndex[params.ConversationID]
	limit := store.ClampLimit(params.Limit, store.MaxMessageLimit)

	lo, hi := 0, len(ids)
	if params.After != "" {
		if idx := slices.Index(ids, params.After); idx >= 0 {
			lo = idx + 1
		} else {
			return nil, store.ErrNotFound
		}
	}
	if params.Before != "" {
		if idx := slices.Index(ids, params.Before); idx >= 0 {
			hi = idx
		} else {
			return nil, store.ErrNotFound
		}
	}
	if lo > hi {
		lo = hi
	}

	window := ids[lo:hi]
	switch {
	case params.After != "":
		if len(window) > limit {
			window = window[:limit]
		}
	default:
		// No lower cursor: serve the newest page of the window.
		if len(window) > limit {
			window = window[len(window)-limit:]
		}
	}

	out := make([]model.Message, 0, len(window))
	for _, id := range window {
		out = append(out, *s.cloneMessage(s.messages[id]))
	}
	return out, nil
}

func (s *Store) conversationExistsLocked(conversationID string) bool {
	if _, ok := s.channels[conversationID]; ok {
		return true
	}
	_, ok := s.threads[conversationID]
	return ok
}

func (s *Store) UpdateMessage(ctx context.Context, id, authorID, body string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if m.AuthorID != authorID {
		return nil, store.ErrNotAuthor
	}
	m.Body = body
	m.UpdatedAt = model.Now()
	return s.cloneMessage(m), nil
}

func (s *Store) DeleteMessage(ctx context.Context, id, authorID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if m.AuthorID != authorID {
		return nil, store.ErrNotAuthor
	}

	snapshot := s.cloneMessage(m)
	ids := s.convIndex[m.ConversationID]
	if idx := slices.Index(ids, id); idx >= 0 {
		s.convIndex[m.ConversationID] = slices.Delete(ids, idx, idx+1)
	}
	delete(s.reactions, id)
	delete(s.messages, id)
	return snapshot, nil
}

// AddReaction inserts into the (message, user, emoji) set. The boolean
// reports whether the set changed, so duplicate reactions emit no event.
func (s *Store) AddReaction(ctx context.Context, messageID, userID, emoji string) (*model.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if s.reactions[messageID] == nil {
		s.reactions[messageID] = make(map[string]map[string]struct{})
	}
	if s.reactions[messageID][emoji] == nil {
		s.reactions[messageID][emoji] = make(map[string]struct{})
	}
	if _, exists := s.reactions[messageID][emoji][userID]; exists {
		return s.cloneMessage(m), false, nil
	}
	s.reactions[messageID][emoji][userID] = struct{}{}
	return s.cloneMessage(m), true, nil
}

// RemoveReaction deletes from the reaction set; removing an absent reaction
// is a no-op.
func (s *Store) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (*model.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	users := s.reactions[messageID][emoji]
	if _, exists := users[userID]; !exists {
		return s.cloneMessage(m), false, nil
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.reactions[messageID], emoji)
	}
	return s.cloneMessage(m), true, nil
}

func (s *Store) ReadMarker(ctx context.Context, conversationID, userID string) (*model.ReadMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conversationExistsLocked(conversationID) {
		return nil, store.ErrNotFound
	}
	if m, ok := s.markers[markerKey(conversationID, userID)]; ok {
		cp := *m
		return &cp, nil
	}
	// Never-written markers read back as the empty sentinel.
	return &model.ReadMarker{ConversationID: conversationID, UserID: userID}, nil
}

func (s *Store) SetReadMarker(ctx context.Context, conversationID, userID, lastReadMessageID string) (*model.ReadMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conversationExistsLocked(conversationID) {
		return nil, store.ErrNotFound
	}
	if lastReadMessageID != "" {
		m, ok := s.messages[lastReadMessageID]
		if !ok || m.ConversationID != conversationID {
			return nil, store.ErrMarkerMessage
		}
	}

	marker := &model.ReadMarker{
		ConversationID:    conversationID,
		UserID:            userID,
		LastReadMessageID: lastReadMessageID,
		UpdatedAt:         model.Now(),
	}
	s.markers[markerKey(conversationID, userID)] = marker
	cp := *marker
	return &cp, nil
}
