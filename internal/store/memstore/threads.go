package memstore

import (
	"context"
	"slices"
	"sort"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func cloneThread(t *model.DirectThread) *model.DirectThread {
	cp := *t
	cp.ParticipantIDs = slices.Clone(t.ParticipantIDs)
	return &cp
}

// CreateDirectThread deduplicates the participant list, requires every
// participant to exist, and reuses the existing thread for a dm pair. New
// threads get a hidden backing server and channel carrying the messages.
func (s *Store) CreateDirectThread(ctx context.Context, params store.CreateThreadParams) (*model.DirectThread, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]struct{}{params.OwnerID: {}}
	participants := []string{params.OwnerID}
	for _, id := range params.ParticipantIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}
	if len(participants) < 2 {
		return nil, false, store.ErrThreadParticipants
	}
	for _, id := range participants {
		if _, ok := s.users[id]; !ok {
			return nil, false, store.ErrThreadParticipants
		}
	}

	kind := model.ThreadGroup
	if len(participants) == 2 {
		kind = model.ThreadDM
		if threadID, ok := s.dmPairs[pairKey(participants[0], participants[1])]; ok {
			return cloneThread(s.threads[threadID]), false, nil
		}
	}

	backing, err := s.createServerLocked(params.OwnerID, "direct-thread", true)
	if err != nil {
		return nil, false, err
	}
	for _, id := range participants[1:] {
		if err := s.addMemberLocked(backing.ID, id); err != nil {
			s.deleteServerLocked(backing.ID)
			return nil, false, err
		}
	}
	ch, err := s.createChannelLocked(backing.ID, "direct", model.ChannelText)
	if err != nil {
		s.deleteServerLocked(backing.ID)
		return nil, false, err
	}

	now := model.Now()
	t := &model.DirectThread{
		ID:             ident.New(ident.Thread),
		ChannelID:      ch.ID,
		Kind:           kind,
		OwnerID:        params.OwnerID,
		Title:          params.Title,
		ParticipantIDs: participants,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.threads[t.ID] = t
	s.threadByChannel[ch.ID] = t.ID
	if kind == model.ThreadDM {
		s.dmPairs[pairKey(participants[0], participants[1])] = t.ID
	}
	return cloneThread(t), true, nil
}

func (s *Store) DirectThreadByID(ctx context.Context, id string) (*model.DirectThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneThread(t), nil
}

// DirectThreadsForUser lists the caller's threads ascending by updatedAt, so
// the most recently active thread comes last.
func (s *Store) DirectThreadsForUser(ctx context.Context, userID string) ([]model.DirectThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.DirectThread, 0)
	for _, t := range s.threads {
		if slices.Contains(t.ParticipantIDs, userID) {
			out = append(out, *cloneThread(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt.Time) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// LeaveDirectThread removes the caller from the thread and its backing
// server and clears their read marker. The last participant to leave tears
// the backing server down, which garbage-collects the channel, messages and
// pair lookup; in that case the returned thread is nil.
func (s *Store) LeaveDirectThread(ctx context.Context, threadID, userID string) (*model.DirectThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok || !slices.Contains(t.ParticipantIDs, userID) {
		return nil, store.ErrNotFound
	}
	if s.leaveThreadLocked(t, userID) {
		return nil, nil
	}
	return cloneThread(s.threads[threadID]), nil
}

// leaveThreadLocked reports whether the thread was destroyed.
func (s *Store) leaveThreadLocked(t *model.DirectThread, userID string) bool {
	backingServerID := s.channels[t.ChannelID].ServerID

	if t.Kind == model.ThreadDM && len(t.ParticipantIDs) == 2 {
		delete(s.dmPairs, pairKey(t.ParticipantIDs[0], t.ParticipantIDs[1]))
	}
	if idx := slices.Index(t.ParticipantIDs, userID); idx >= 0 {
		t.ParticipantIDs = slices.Delete(t.ParticipantIDs, idx, idx+1)
	}
	delete(s.markers, markerKey(t.ID, userID))

	if len(t.ParticipantIDs) == 0 {
		// The server cascade reaches the backing channel, which clears the
		// thread's messages and lookup entries along with the thread itself.
		s.deleteServerLocked(backingServerID)
		return true
	}

	s.removeMemberLocked(backingServerID, userID)
	t.UpdatedAt = model.Now()
	if t.OwnerID == userID {
		// Hand the thread and its backing server to the lexicographically
		// first remaining participant so the owner-is-member invariant holds.
		next := slices.Min(t.ParticipantIDs)
		t.OwnerID = next
		s.servers[backingServerID].OwnerID = next
	}
	return false
}
