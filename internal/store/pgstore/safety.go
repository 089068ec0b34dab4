package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

const appealColumns = `id, server_id, user_id, reason, status, created_at, updated_at`

func scanAppeal(row pgx.Row) (*model.Appeal, error) {
	var a model.Appeal
	var created, updated time.Time
	if err := row.Scan(&a.ID, &a.ServerID, &a.UserID, &a.Reason, &a.Status, &created, &updated); err != nil {
		return nil, fmt.Errorf("scan appeal: %w", err)
	}
	a.CreatedAt = model.At(created)
	a.UpdatedAt = model.At(updated)
	return &a, nil
}

// CreateReport files a safety report after checking the target exists.
func (s *Store) CreateReport(ctx context.Context, params store.CreateReportParams) (*model.Report, error) {
	var table string
	switch params.TargetType {
	case model.ReportTargetUser:
		table = "users"
	case model.ReportTargetMessage:
		table = "messages"
	case model.ReportTargetServer:
		table = "servers"
	default:
		return nil, store.ErrNotFound
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM `+table+` WHERE id = $1`, params.TargetID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check report target: %w", err)
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
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO safety_reports (id, reporter_id, target_type, target_id, reason, details, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.ID, report.ReporterID, string(report.TargetType), report.TargetID,
		report.Reason, report.Details, report.Status, report.CreatedAt.Time,
	); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return report, nil
}

// ReportsByUser lists the reporter's own reports newest first.
func (s *Store) ReportsByUser(ctx context.Context, reporterID string) ([]model.Report, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, reporter_id, target_type, target_id, reason, details, status, created_at
		 FROM safety_reports WHERE reporter_id = $1
		 ORDER BY created_at DESC, id DESC`, reporterID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	out := make([]model.Report, 0)
	for rows.Next() {
		var r model.Report
		var created time.Time
		if err := rows.Scan(&r.ID, &r.ReporterID, &r.TargetType, &r.TargetID,
			&r.Reason, &r.Details, &r.Status, &created); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.CreatedAt = model.At(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateAppeal opens a ban appeal. The caller must actually be banned from
// the server and must not already have a pending appeal for it.
func (s *Store) CreateAppeal(ctx context.Context, serverID, userID, reason string) (*model.Appeal, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1`, serverID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check server: %w", err)
	}
	var banned bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM server_bans WHERE server_id = $1 AND user_id = $2)`,
		serverID, userID).Scan(&banned); err != nil {
		return nil, fmt.Errorf("check ban: %w", err)
	}
	if !banned {
		return nil, store.ErrNotFound
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO server_appeals (id, server_id, user_id, reason, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		appeal.ID, appeal.ServerID, appeal.UserID, appeal.Reason, string(appeal.Status), now.Time)
	if isUniqueViolation(err) {
		return nil, store.ErrOpenAppeal
	}
	if err != nil {
		return nil, fmt.Errorf("insert appeal: %w", err)
	}
	return appeal, nil
}

// AppealByID fetches one appeal.
func (s *Store) AppealByID(ctx context.Context, appealID string) (*model.Appeal, error) {
	appeal, err := scanAppeal(s.pool.QueryRow(ctx,
		`SELECT `+appealColumns+` FROM server_appeals WHERE id = $1`, appealID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return appeal, nil
}

// Appeals lists a server's appeals newest first.
func (s *Store) Appeals(ctx context.Context, serverID string) ([]model.Appeal, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT TRUE FROM servers WHERE id = $1`, serverID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check server: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+appealColumns+` FROM server_appeals WHERE server_id = $1
		 ORDER BY created_at DESC, id DESC`, serverID)
	if err != nil {
		return nil, fmt.Errorf("query appeals: %w", err)
	}
	defer rows.Close()

	out := make([]model.Appeal, 0)
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ResolveAppeal closes a pending appeal. Approval lifts the ban and records
// the unban in the audit log.
func (s *Store) ResolveAppeal(ctx context.Context, appealID, reviewerID string, approve bool) (*model.Appeal, error) {
	var out *model.Appeal
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		appeal, err := scanAppeal(tx.QueryRow(ctx,
			`SELECT `+appealColumns+` FROM server_appeals WHERE id = $1 FOR UPDATE`, appealID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("lock appeal: %w", err)
		}
		if appeal.Status != model.AppealPending {
			return store.ErrAppealClosed
		}

		if approve {
			appeal.Status = model.AppealApproved
			if _, err := tx.Exec(ctx,
				`DELETE FROM server_bans WHERE server_id = $1 AND user_id = $2`,
				appeal.ServerID, appeal.UserID); err != nil {
				return fmt.Errorf("lift ban: %w", err)
			}
			if err := appendAuditTx(ctx, tx, appeal.ServerID, reviewerID, appeal.UserID,
				string(model.ModerationUnban), "appeal approved",
				map[string]any{"appealId": appeal.ID}); err != nil {
				return err
			}
		} else {
			appeal.Status = model.AppealRejected
		}
		appeal.UpdatedAt = model.Now()
		if _, err := tx.Exec(ctx,
			`UPDATE server_appeals SET status = $2, updated_at = $3 WHERE id = $1`,
			appeal.ID, string(appeal.Status), appeal.UpdatedAt.Time); err != nil {
			return fmt.Errorf("update appeal: %w", err)
		}
		out = appeal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
