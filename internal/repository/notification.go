package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

// NotificationRepository stores per-user notifications.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository constructs a repository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// CreateNotification inserts n unless its ID already exists, which makes
// redelivered queue tasks harmless.
func (r *NotificationRepository) CreateNotification(ctx context.Context, n *model.Notification) (bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, title, description, type, is_read, created_at, report_id, dog_name, breed, new_status, org_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),NULLIF($12,''))
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.UserID, n.Title, n.Desc, n.Type, n.IsRead, n.CreatedAt, n.ReportID, n.DogName, n.Breed,
		string(n.NewStatus), n.OrgName)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListNotifications returns the user's notifications, newest first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > model.DefaultListLimit {
		limit = model.DefaultListLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, description, type, is_read, created_at, report_id, dog_name, breed,
			COALESCE(new_status,''), COALESCE(org_name,'')
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		var (
			n      model.Notification
			status string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Desc, &n.Type, &n.IsRead, &n.CreatedAt,
			&n.ReportID, &n.DogName, &n.Breed, &status, &n.OrgName); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.NewStatus = model.Status(status)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationRead flags one notification read. Someone else's
// notification is reported as not found.
func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// MarkAllNotificationsRead flags every unread notification of the user.
func (r *NotificationRepository) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountUnread counts the user's unread notifications.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}
