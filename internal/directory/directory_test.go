package directory

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

var profileColumns = []string{"id", "display_name", "photo_url", "total_rescues", "monthly_rescues"}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Repository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, New(db, zap.NewNop())
}

func TestProfile_Organization(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, display_name, photo_url, total_rescues, monthly_rescues FROM organizations`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow("org-1", "Sneha's Care", "", 120, 8))

	p, err := repo.Profile(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileOrganization, p.Kind)
	assert.Equal(t, "Sneha's Care", p.DisplayName)
	assert.Equal(t, 120, p.TotalRescues)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfile_FallsBackToUsers(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM organizations`).
		WithArgs("vol-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM users`).
		WithArgs("vol-1").
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow("vol-1", "Asha", "https://img/asha.png", 3, 1))

	p, err := repo.Profile(context.Background(), "vol-1")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileUser, p.Kind)
	assert.Equal(t, "Asha", p.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfile_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM organizations`).WithArgs("ghost").WillReturnRows(sqlmock.NewRows(profileColumns))
	mock.ExpectQuery(`FROM users`).WithArgs("ghost").WillReturnRows(sqlmock.NewRows(profileColumns))

	_, err := repo.Profile(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfile_DatabaseError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM organizations`).WithArgs("org-1").WillReturnError(errors.New("connection reset"))

	_, err := repo.Profile(context.Background(), "org-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboard_Monthly(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(profileColumns).
		AddRow("org-2", "KAT Centre", "", 300, 12).
		AddRow("org-1", "Sneha's Care", "", 420, 9)
	mock.ExpectQuery(`ORDER BY monthly_rescues DESC`).
		WithArgs(10).
		WillReturnRows(rows)

	board, err := repo.Leaderboard(context.Background(), model.LeaderboardMonthly, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "org-2", board[0].ID)
	assert.Equal(t, 12, board[0].MonthlyRescues)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboard_TotalClampsLimit(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`ORDER BY total_rescues DESC`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(profileColumns))

	board, err := repo.Leaderboard(context.Background(), model.LeaderboardTotal, 0)
	require.NoError(t, err)
	assert.Empty(t, board)
	assert.NoError(t, mock.ExpectationsWereMet())
}
