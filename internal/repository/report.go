// Package repository wraps the SQL used by the API and the worker.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

const reportColumns = `id, reporter_id, emergency, name, breed, gender, color, characteristics, description,
	condition, latitude, longitude, address, image_urls, status, rescuer_id, assigned_team, assigned_team_id,
	created_at, updated_at`

// ReportRepository stores reports in Postgres. The claim is a conditional
// UPDATE and every other mutation runs under SELECT ... FOR UPDATE, so
// concurrent writers from different API instances serialize in the database.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository constructs a repository.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// CreateReport inserts r, assigning its ID and timestamps.
func (r *ReportRepository) CreateReport(ctx context.Context, rep *model.Report) error {
	now := time.Now().UTC()
	rep.ID = uuid.NewString()
	rep.CreatedAt = now
	rep.UpdatedAt = now
	images := rep.ImageURLs
	if images == nil {
		images = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, rep.ID, rep.ReporterID, rep.Emergency, rep.Name, rep.Breed, string(rep.Gender), rep.Color,
		rep.Characteristics, rep.Description, string(rep.Condition), rep.Location.Latitude,
		rep.Location.Longitude, rep.Location.Address, images, string(rep.Status), rep.RescuerID,
		rep.AssignedTeam, rep.AssignedTeamID, rep.CreatedAt, rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport returns a report by id.
func (r *ReportRepository) GetReport(ctx context.Context, id string) (*model.Report, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=$1`, id)
	rep, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("report %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("select report: %w", err)
	}
	return rep, nil
}

// ListReports returns reports matching f, newest first.
func (r *ReportRepository) ListReports(ctx context.Context, f model.ReportFilter) ([]*model.Report, error) {
	query, args := buildListQuery(f)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []*model.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return out, nil
}

func buildListQuery(f model.ReportFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if f.ReporterID != "" {
		where = append(where, "reporter_id = "+arg(f.ReporterID))
	}
	if f.RescuerID != "" {
		where = append(where, "rescuer_id = "+arg(f.RescuerID))
	}
	if f.UnclaimedOnly {
		where = append(where, "rescuer_id IS NULL")
	}

	var b strings.Builder
	b.WriteString("SELECT " + reportColumns + " FROM reports")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC LIMIT " + arg(f.EffectiveLimit()))
	return b.String(), args
}

// ClaimReport sets the rescuer only while the report is unclaimed and pending.
// The WHERE clause is the compare-and-swap: of two concurrent claims only one
// UPDATE matches a row.
func (r *ReportRepository) ClaimReport(ctx context.Context, id, orgID string) (*model.Report, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE reports
		SET rescuer_id = $2,
			status = $3,
			assigned_team = $4,
			assigned_team_id = '',
			updated_at = $5
		WHERE id = $1 AND rescuer_id IS NULL AND status = $6
		RETURNING `+reportColumns,
		id, orgID, string(model.StatusAcknowledged), model.UnassignedTeam, time.Now().UTC(), string(model.StatusPending))
	rep, err := scanReport(row)
	if err == nil {
		return rep, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim report: %w", err)
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM reports WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("claim report: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("report %s: %w", id, model.ErrNotFound)
	}
	return nil, model.ErrAlreadyClaimed
}

// UpdateReport locks the row, lets fn validate and mutate it, then writes the
// mutable fields back in the same transaction.
func (r *ReportRepository) UpdateReport(ctx context.Context, id string, fn func(*model.Report) error) (*model.Report, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx)

	rep, err := scanReport(tx.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("report %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("lock report: %w", err)
	}
	if err := fn(rep); err != nil {
		return nil, err
	}
	rep.UpdatedAt = time.Now().UTC()
	if _, err := tx.Exec(ctx, `
		UPDATE reports
		SET status = $2, assigned_team = $3, assigned_team_id = $4, updated_at = $5
		WHERE id = $1
	`, id, string(rep.Status), rep.AssignedTeam, rep.AssignedTeamID, rep.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rep, nil
}

func scanReport(row pgx.Row) (*model.Report, error) {
	var (
		rep                       model.Report
		gender, condition, status string
	)
	err := row.Scan(&rep.ID, &rep.ReporterID, &rep.Emergency, &rep.Name, &rep.Breed, &gender, &rep.Color,
		&rep.Characteristics, &rep.Description, &condition, &rep.Location.Latitude, &rep.Location.Longitude,
		&rep.Location.Address, &rep.ImageURLs, &status, &rep.RescuerID, &rep.AssignedTeam, &rep.AssignedTeamID,
		&rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rep.Gender = model.Gender(gender)
	rep.Condition = model.Condition(condition)
	rep.Status = model.Status(status)
	return &rep, nil
}
