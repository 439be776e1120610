// Package directory reads user and organization profiles and ranks
// organizations for the leaderboard. It runs on database/sql so it can share
// the pgx pool through the stdlib adapter.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

// Repository reads the users and organizations tables.
type Repository struct {
	db     *sql.DB
	logger *zap.Logger
}

// New wraps an existing *sql.DB.
func New(db *sql.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// FromPool opens a *sql.DB backed by the pgx pool.
func FromPool(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return New(stdlib.OpenDBFromPool(pool), logger)
}

// Profile looks the id up among organizations first, then users.
func (r *Repository) Profile(ctx context.Context, id string) (*model.Profile, error) {
	p, err := r.get(ctx, "organizations", model.ProfileOrganization, id)
	if err == nil || !errors.Is(err, model.ErrNotFound) {
		return p, err
	}
	return r.get(ctx, "users", model.ProfileUser, id)
}

func (r *Repository) get(ctx context.Context, table string, kind model.ProfileKind, id string) (*model.Profile, error) {
	p := model.Profile{Kind: kind}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, photo_url, total_rescues, monthly_rescues FROM `+table+` WHERE id = $1`, id).
		Scan(&p.ID, &p.DisplayName, &p.PhotoURL, &p.TotalRescues, &p.MonthlyRescues)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return &p, nil
}

// Leaderboard returns organizations ordered by the chosen rescue counter.
func (r *Repository) Leaderboard(ctx context.Context, period model.LeaderboardPeriod, limit int) ([]*model.Profile, error) {
	column := "total_rescues"
	if period == model.LeaderboardMonthly {
		column = "monthly_rescues"
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, display_name, photo_url, total_rescues, monthly_rescues
		FROM organizations
		ORDER BY `+column+` DESC, display_name ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []*model.Profile
	for rows.Next() {
		p := model.Profile{Kind: model.ProfileOrganization}
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.PhotoURL, &p.TotalRescues, &p.MonthlyRescues); err != nil {
			r.logger.Error("scan leaderboard row", zap.Error(err))
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}
	return out, nil
}

// Close releases the *sql.DB. The underlying pool stays open.
func (r *Repository) Close() error {
	return r.db.Close()
}
