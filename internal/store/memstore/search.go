package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	userSearchLimit    = 20
)

func searchLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

// SearchUsers matches a case-insensitive substring against username and
// display name, excluding the caller.
func (s *Store) SearchUsers(ctx context.Context, callerID, query string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	out := make([]model.User, 0)
	for _, u := range s.users {
		if u.ID == callerID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.DisplayName), q) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > userSearchLimit {
		out = out[:userSearchLimit]
	}
	return out, nil
}

// SearchChannels matches channel names the caller can read. Channels of
// servers backing direct threads never surface here.
func (s *Store) SearchChannels(ctx context.Context, params store.SearchParams) ([]model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(params.Query)
	out := make([]model.Channel, 0)
	for _, ch := range s.channels {
		srv := s.servers[ch.ServerID]
		if srv == nil || srv.Hidden {
			continue
		}
		if params.ServerID != "" && ch.ServerID != params.ServerID {
			continue
		}
		if !strings.Contains(strings.ToLower(ch.Name), q) {
			continue
		}
		if !s.canReadLocked(ch, params.CallerID) {
			continue
		}
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if limit := searchLimit(params.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchMessages scans newest first and keeps messages the caller can read:
// channel messages behind the read capability, thread messages behind
// participation. A serverId filter excludes thread messages entirely.
func (s *Store) SearchMessages(ctx context.Context, params store.SearchParams) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(params.Query)
	matched := make([]*model.Message, 0)
	for _, m := range s.messages {
		if strings.Contains(strings.ToLower(m.Body), q) {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt.Time) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt.Time)
		}
		return matched[i].ID > matched[j].ID
	})

	limit := searchLimit(params.Limit)
	out := make([]model.Message, 0, min(limit, len(matched)))
	for _, m := range matched {
		if len(out) == limit {
			break
		}
		if ch, ok := s.channels[m.ConversationID]; ok {
			if params.ServerID != "" && ch.ServerID != params.ServerID {
				continue
			}
			if !s.canReadLocked(ch, params.CallerID) {
				continue
			}
		} else if t, ok := s.threads[m.ConversationID]; ok {
			if params.ServerID != "" {
				continue
			}
			if !slices.Contains(t.ParticipantIDs, params.CallerID) {
				continue
			}
		} else {
			continue
		}
		out = append(out, *s.cloneMessage(m))
	}
	return out, nil
}
