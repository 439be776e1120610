package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

// CreateNotification stores n unless a notification with the same ID exists.
func (m *MemoryStore) CreateNotification(_ context.Context, n *model.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[n.ID]; ok {
		return false, nil
	}
	cp := *n
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	m.notifications[n.ID] = &cp
	return true, nil
}

// ListNotifications returns the user's notifications, newest first.
func (m *MemoryStore) ListNotifications(_ context.Context, userID string, limit int) ([]*model.Notification, error) {
	m.mu.RLock()
	var out []*model.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkNotificationRead flags one notification; only its recipient may do so.
func (m *MemoryStore) MarkNotificationRead(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return fmt.Errorf("notification %s: %w", id, model.ErrNotFound)
	}
	n.IsRead = true
	return nil
}

// MarkAllNotificationsRead flags every unread notification of the user.
func (m *MemoryStore) MarkAllNotificationsRead(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

// CountUnread counts the user's unread notifications.
func (m *MemoryStore) CountUnread(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// PutTeam inserts or replaces a team. Team CRUD lives elsewhere; this exists
// for seeding.
func (m *MemoryStore) PutTeam(t model.Team) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := t
	cp.Members = append([]string(nil), t.Members...)
	m.teams[t.ID] = &cp
}

// GetTeam returns a team by id.
func (m *MemoryStore) GetTeam(_ context.Context, id string) (*model.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", id, model.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

// ListTeams returns the organization's teams ordered by name.
func (m *MemoryStore) ListTeams(_ context.Context, orgID string) ([]*model.Team, error) {
	m.mu.RLock()
	var out []*model.Team
	for _, t := range m.teams {
		if t.OrgID == orgID {
			cp := *t
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PutProfile inserts or replaces a profile.
func (m *MemoryStore) PutProfile(p model.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.profiles[p.ID] = &cp
}

// Profile returns a user or organization profile.
func (m *MemoryStore) Profile(_ context.Context, id string) (*model.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, model.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// Leaderboard ranks organizations by monthly or total rescues.
func (m *MemoryStore) Leaderboard(_ context.Context, period model.LeaderboardPeriod, limit int) ([]*model.Profile, error) {
	m.mu.RLock()
	var out []*model.Profile
	for _, p := range m.profiles {
		if p.Kind == model.ProfileOrganization {
			cp := *p
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Score(period), out[j].Score(period)
		if a == b {
			return out[i].DisplayName < out[j].DisplayName
		}
		return a > b
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
