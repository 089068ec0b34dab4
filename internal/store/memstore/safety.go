package memstore

import (
	"context"
	"sort"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// CreateReport files a safety report after checking the target exists.
func (s *Store) CreateReport(ctx context.Context, params store.CreateReportParams) (*model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists bool
	switch params.TargetType {
	case model.ReportTargetUser:
		_, exists = s.users[params.TargetID]
	case model.ReportTargetMessage:
		_, exists = s.messages[params.TargetID]
	case model.ReportTargetServer:
		_, exists = s.servers[params.TargetID]
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	report := &model.Report{
		ID:         ident.New(ident.Report),
		ReporterID: params.ReporterID,
		TargetType: params.TargetType,
		TargetID:   params.TargetID,
		Reason:     params.Reason,
		Details:    params.Details,
		Status:     model.ReportOpen,
		CreatedAt:  model.Now(),
	}
	s.reports = append(s.reports, report)
	cp := *report
	return &cp, nil
}

// ReportsByUser lists the reporter's own reports newest first.
func (s *Store) ReportsByUser(ctx context.Context, reporterID string) ([]model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Report, 0)
	for _, r := range s.reports {
		if r.ReporterID == reporterID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.After(out[j].CreatedAt.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CreateAppeal opens a ban appeal. The caller must actually be banned from
// the server and must not already have a pending appeal for it.
func (s *Store) CreateAppeal(ctx context.Context, serverID, userID, reason string) (*model.Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, banned := s.bans[serverID][userID]; !banned {
		return nil, store.ErrNotFound
	}
	for _, a := range s.appeals {
		if a.ServerID == serverID && a.UserID == userID && a.Status == model.AppealPending {
			return nil, store.ErrOpenAppeal
		}
	}

	now := model.Now()
	appeal := &model.Appeal{
		ID:        ident.New(ident.Appeal),
		ServerID:  serverID,
		UserID:    userID,
		Reason:    reason,
		Status:    model.AppealPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.appeals[appeal.ID] = appeal
	cp := *appeal
	return &cp, nil
}

// AppealByID fetches one appeal.
func (s *Store) AppealByID(ctx context.Context, appealID string) (*model.Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appeal, ok := s.appeals[appealID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *appeal
	return &cp, nil
}

// Appeals lists a server's appeals newest first.
func (s *Store) Appeals(ctx context.Context, serverID string) ([]model.Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]model.Appeal, 0)
	for _, a := range s.appeals {
		if a.ServerID == serverID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.After(out[j].CreatedAt.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ResolveAppeal closes a pending appeal. Approval lifts the ban and records
// the unban in the audit log.
func (s *Store) ResolveAppeal(ctx context.Context, appealID, reviewerID string, approve bool) (*model.Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appeal, ok := s.appeals[appealID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if appeal.Status != model.AppealPending {
		return nil, store.ErrAppealClosed
	}

	if approve {
		appeal.Status = model.AppealApproved
		delete(s.bans[appeal.ServerID], appeal.UserID)
		s.appendAuditLocked(appeal.ServerID, reviewerID, appeal.UserID, string(model.ModerationUnban), "appeal approved", map[string]any{"appealId": appeal.ID})
	} else {
		appeal.Status = model.AppealRejected
	}
	appeal.UpdatedAt = model.Now()

	cp := *appeal
	return &cp, nil
}
