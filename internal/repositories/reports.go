package repositories

import (
	"GuestReportBot/internal/models/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrReportNotFound is returned when no pending report has the given ID.
var ErrReportNotFound = errors.New("pending report not found")

// ErrReportExists is returned when a pending report with the same ID exists.
var ErrReportExists = errors.New("pending report already exists")

// ErrQueueFull is returned when the pending report limit is reached.
var ErrQueueFull = errors.New("pending report limit reached")

const uniqueViolation = "23505"

// pendingReportsLock serializes bounded inserts into pending_reports.
const pendingReportsLock int64 = 0x67756573747270

type pendingReportRow struct {
	ID            string         `db:"id"`
	SubmitterID   int64          `db:"submitter_id"`
	SubmitterName string         `db:"submitter_name"`
	Country       string         `db:"country"`
	City          string         `db:"city"`
	GuestName     string         `db:"guest_name"`
	Phone         string         `db:"phone"`
	Description   string         `db:"description"`
	PhotoIDs      pq.StringArray `db:"photo_ids"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (row pendingReportRow) toDomain() domain.Report {
	var photos []string
	if len(row.PhotoIDs) > 0 {
		photos = []string(row.PhotoIDs)
	}
	return domain.Report{
		ID: row.ID,
		Submitter: domain.Submitter{
			ID:          row.SubmitterID,
			DisplayName: row.SubmitterName,
		},
		Country:     row.Country,
		City:        row.City,
		GuestName:   row.GuestName,
		Phone:       row.Phone,
		Description: row.Description,
		PhotoIDs:    photos,
		CreatedAt:   row.CreatedAt,
	}
}

const pendingReportColumns = `id, submitter_id, submitter_name, country, city,
	guest_name, phone, description, photo_ids, created_at`

// CreatePendingReport inserts a report awaiting moderation. A positive limit
// caps the number of pending reports; the check and the insert run under one
// advisory lock so concurrent submits cannot overshoot it.
func (r *Repository) CreatePendingReport(ctx context.Context, rep domain.Report, limit int) error {
	op := "Repository.CreatePendingReport"
	photos := pq.StringArray(rep.PhotoIDs)
	if photos == nil {
		photos = pq.StringArray{}
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	if limit > 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, pendingReportsLock); err != nil {
			return fmt.Errorf("%s: lock: %w", op, err)
		}
		var count int
		if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM pending_reports`); err != nil {
			return fmt.Errorf("%s: count: %w", op, err)
		}
		if count >= limit {
			return fmt.Errorf("%s: %d pending: %w", op, count, ErrQueueFull)
		}
	}

	query := `INSERT INTO pending_reports (` + pendingReportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = tx.ExecContext(ctx, query,
		rep.ID, rep.Submitter.ID, rep.Submitter.DisplayName,
		rep.Country, rep.City, rep.GuestName, rep.Phone, rep.Description,
		photos, rep.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %s: %w", op, rep.ID, ErrReportExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// ResolvePendingReport removes the report, runs apply on it and records the
// decision in one transaction. The deleted row stays locked until commit, so
// only one caller can ever resolve a given report. When apply fails the
// transaction rolls back: the report stays pending and no decision is logged.
func (r *Repository) ResolvePendingReport(
	ctx context.Context,
	id string,
	decision domain.Decision,
	adminID int64,
	apply func(domain.Report) error,
) (domain.Report, error) {
	op := "Repository.ResolvePendingReport"

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Report{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	var row pendingReportRow
	query := `DELETE FROM pending_reports WHERE id = $1 RETURNING ` + pendingReportColumns
	if err := tx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Report{}, fmt.Errorf("%s: %s: %w", op, id, ErrReportNotFound)
		}
		return domain.Report{}, fmt.Errorf("%s: delete: %w", op, err)
	}
	rep := row.toDomain()

	if apply != nil {
		if err := apply(rep); err != nil {
			return domain.Report{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	insert := `INSERT INTO report_decisions (report_id, submitter_id, decision, admin_id)
		VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, insert, id, row.SubmitterID, string(decision), adminID); err != nil {
		return domain.Report{}, fmt.Errorf("%s: record decision: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Report{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return rep, nil
}

// GetPendingReports returns all pending reports, oldest first.
func (r *Repository) GetPendingReports(ctx context.Context) ([]domain.Report, error) {
	op := "Repository.GetPendingReports"
	var rows []pendingReportRow
	query := `SELECT ` + pendingReportColumns + ` FROM pending_reports ORDER BY created_at, id`
	if err := r.DB.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reports := make([]domain.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.toDomain())
	}
	return reports, nil
}

// CountPendingReports returns the number of reports awaiting moderation.
func (r *Repository) CountPendingReports(ctx context.Context) (int, error) {
	op := "Repository.CountPendingReports"
	var count int
	if err := r.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM pending_reports`); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
