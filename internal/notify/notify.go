// Package notify builds and delivers the per-user notification records
// written when a report changes status. Delivery is best effort: the caller
// logs failures and never rolls back the status change.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

// Store persists notifications. CreateNotification must be idempotent on the
// notification ID and report whether a new row was written.
type Store interface {
	CreateNotification(ctx context.Context, n *model.Notification) (bool, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Sender hands a notification to some delivery mechanism.
type Sender interface {
	Send(ctx context.Context, n *model.Notification) error
}

var idNamespace = uuid.MustParse("9b4e5c1a-3f0d-4e8b-a6c2-7d1f2e3a4b5c")

// ID derives the notification id for a report reaching a status. Status
// never repeats for a report, so the pair identifies exactly one event.
func ID(reportID string, status model.Status) string {
	return uuid.NewSHA1(idNamespace, []byte(reportID+":"+string(status))).String()
}

// Compose builds the notification for the reporter of r after it moved to
// newStatus at the hands of orgName.
func Compose(r *model.Report, newStatus model.Status, orgName string, now time.Time) *model.Notification {
	if orgName == "" {
		orgName = "A rescue organization"
	}
	return &model.Notification{
		ID:        ID(r.ID, newStatus),
		UserID:    r.ReporterID,
		Title:     "Report status updated",
		Desc:      fmt.Sprintf("%s marked your report about %s as %s.", orgName, r.DogName(), newStatus.Label()),
		Type:      model.NotificationTypeStatusUpdate,
		IsRead:    false,
		CreatedAt: now.UTC(),
		ReportID:  r.ID,
		DogName:   r.Name,
		Breed:     r.Breed,
		NewStatus: newStatus,
		OrgName:   orgName,
	}
}

// Direct writes notifications synchronously.
type Direct struct {
	store Store
}

// NewDirect constructs a Direct sender.
func NewDirect(store Store) *Direct {
	return &Direct{store: store}
}

// Send writes n; a duplicate is not an error.
func (d *Direct) Send(ctx context.Context, n *model.Notification) error {
	if _, err := d.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}
