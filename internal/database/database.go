package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema creates every table the service reads or writes. The users,
// organizations and teams tables are owned by the profile flows; they are
// created here so a fresh database is usable.
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	reporter_id TEXT NOT NULL,
	emergency BOOLEAN NOT NULL DEFAULT FALSE,
	name TEXT NOT NULL DEFAULT '',
	breed TEXT NOT NULL,
	gender TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	characteristics TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	condition TEXT NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	image_urls TEXT[] NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	rescuer_id TEXT,
	assigned_team TEXT NOT NULL DEFAULT '',
	assigned_team_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_status_created ON reports(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_rescuer ON reports(rescuer_id);
CREATE INDEX IF NOT EXISTS idx_reports_reporter ON reports(reporter_id);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	type TEXT NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	report_id TEXT NOT NULL,
	dog_name TEXT NOT NULL DEFAULT '',
	breed TEXT NOT NULL DEFAULT '',
	new_status TEXT,
	org_name TEXT
);
CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS teams (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	focus TEXT NOT NULL DEFAULT '',
	members TEXT[] NOT NULL DEFAULT '{}',
	org_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active'
);
CREATE INDEX IF NOT EXISTS idx_teams_org ON teams(org_id);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	photo_url TEXT NOT NULL DEFAULT '',
	total_rescues INTEGER NOT NULL DEFAULT 0,
	monthly_rescues INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS organizations (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	photo_url TEXT NOT NULL DEFAULT '',
	total_rescues INTEGER NOT NULL DEFAULT 0,
	monthly_rescues INTEGER NOT NULL DEFAULT 0
);`

// EnsureSchema creates the tables if needed. Keeping the migration in code
// lets docker-compose bootstrap everything without a separate tool.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
