// Package storage contains the in-memory persistence layer used for local
// development and tests. Files in the folder share one MemoryStore type that
// satisfies the report, notification, team and profile store interfaces.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

// MemoryStore guards its maps with a single RWMutex; read-heavy listing takes
// the read lock while every write, including the claim compare-and-swap,
// takes the write lock.
type MemoryStore struct {
	mu            sync.RWMutex
	reports       map[string]*model.Report
	notifications map[string]*model.Notification
	teams         map[string]*model.Team
	profiles      map[string]*model.Profile
	now           func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports:       make(map[string]*model.Report),
		notifications: make(map[string]*model.Notification),
		teams:         make(map[string]*model.Team),
		profiles:      make(map[string]*model.Profile),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateReport assigns ID and timestamps, then stores a copy.
func (m *MemoryStore) CreateReport(_ context.Context, r *model.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.reports[r.ID] = r.Clone()
	return nil
}

// GetReport returns a copy so callers cannot mutate internal state.
func (m *MemoryStore) GetReport(_ context.Context, id string) (*model.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, model.ErrNotFound)
	}
	return r.Clone(), nil
}

// ListReports returns matching reports, newest first.
func (m *MemoryStore) ListReports(_ context.Context, f model.ReportFilter) ([]*model.Report, error) {
	m.mu.RLock()
	out := make([]*model.Report, 0, len(m.reports))
	for _, r := range m.reports {
		if f.Match(r) {
			out = append(out, r.Clone())
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimReport sets the rescuer only if nobody holds the report yet.
func (m *MemoryStore) ClaimReport(_ context.Context, id, orgID string) (*model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, model.ErrNotFound)
	}
	if r.Claimed() || r.Status != model.StatusPending {
		return nil, model.ErrAlreadyClaimed
	}
	rescuer := orgID
	r.RescuerID = &rescuer
	r.Status = model.StatusAcknowledged
	r.AssignedTeam = model.UnassignedTeam
	r.AssignedTeamID = ""
	r.UpdatedAt = m.now()
	return r.Clone(), nil
}

// UpdateReport runs fn against a copy under the write lock and keeps the
// mutable fields if fn succeeds.
func (m *MemoryStore) UpdateReport(_ context.Context, id string, fn func(*model.Report) error) (*model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, model.ErrNotFound)
	}
	work := r.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	r.Status = work.Status
	r.AssignedTeam = work.AssignedTeam
	r.AssignedTeamID = work.AssignedTeamID
	r.UpdatedAt = m.now()
	return r.Clone(), nil
}
