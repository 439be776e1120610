package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

// TeamRepository reads organization teams. Teams are created and edited by
// the organization admin flows, not here.
type TeamRepository struct {
	pool *pgxpool.Pool
}

// NewTeamRepository constructs a repository.
func NewTeamRepository(pool *pgxpool.Pool) *TeamRepository {
	return &TeamRepository{pool: pool}
}

// GetTeam returns a team by id.
func (r *TeamRepository) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	var t model.Team
	err := r.pool.QueryRow(ctx, `SELECT id, name, focus, members, org_id, status FROM teams WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Focus, &t.Members, &t.OrgID, &t.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("team %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("select team: %w", err)
	}
	return &t, nil
}

// ListTeams returns the organization's teams ordered by name.
func (r *TeamRepository) ListTeams(ctx context.Context, orgID string) ([]*model.Team, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, focus, members, org_id, status FROM teams WHERE org_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()
	var out []*model.Team
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Focus, &t.Members, &t.OrgID, &t.Status); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
