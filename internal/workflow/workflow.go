// Package workflow owns the report lifecycle: submission, the claim
// compare-and-swap, status transitions restricted to the rescuer, team
// assignment, and the side effects (notification, live feed) that follow.
//
// Every operation takes the acting identity as a parameter; nothing here reads
// ambient session state.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/feed"
	"github.com/dharsanguruparan/straymandu/internal/model"
	"github.com/dharsanguruparan/straymandu/internal/notify"
	"github.com/dharsanguruparan/straymandu/internal/proximity"
)

var (
	// ErrNotFound and ErrAlreadyClaimed alias the store sentinels so API code
	// only needs this package.
	ErrNotFound       = model.ErrNotFound
	ErrAlreadyClaimed = model.ErrAlreadyClaimed

	ErrNotClaimed        = errors.New("report is not claimed")
	ErrNotRescuer        = errors.New("report is claimed by another organization")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrForeignTeam       = errors.New("team belongs to another organization")
	ErrMissingIdentity   = errors.New("acting identity required")
)

// ValidationError names the submission field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Store is the report persistence the workflow needs. ClaimReport must be an
// atomic compare-and-swap on an unclaimed pending report, and UpdateReport
// must apply fn and its write as one unit.
type Store interface {
	CreateReport(ctx context.Context, r *model.Report) error
	GetReport(ctx context.Context, id string) (*model.Report, error)
	ListReports(ctx context.Context, f model.ReportFilter) ([]*model.Report, error)
	ClaimReport(ctx context.Context, id, orgID string) (*model.Report, error)
	UpdateReport(ctx context.Context, id string, fn func(*model.Report) error) (*model.Report, error)
}

// Profiles resolves display names for notifications.
type Profiles interface {
	Profile(ctx context.Context, id string) (*model.Profile, error)
}

// Service implements the workflow operations.
type Service struct {
	store    Store
	sender   notify.Sender
	broker   feed.Broker
	profiles Profiles
	log      *zap.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs a Service. broker and profiles may be nil.
func New(store Store, sender notify.Sender, broker feed.Broker, profiles Profiles, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		sender:   sender,
		broker:   broker,
		profiles: profiles,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submission is what a volunteer sends when filing a report.
type Submission struct {
	Emergency       bool           `json:"emergency"`
	Name            string         `json:"name"`
	Breed           string         `json:"breed"`
	Gender          string         `json:"gender"`
	Color           string         `json:"color"`
	Characteristics string         `json:"characteristics"`
	Description     string         `json:"description"`
	Condition       string         `json:"condition"`
	Location        model.Location `json:"location"`
	ImageURLs       []string       `json:"imageUrls"`
}

// Submit validates sub and files a pending, unclaimed report.
func (s *Service) Submit(ctx context.Context, reporterID string, sub Submission) (*model.Report, error) {
	if reporterID == "" {
		return nil, ErrMissingIdentity
	}
	r, err := sub.toReport(reporterID)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateReport(ctx, r); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	s.log.Info("report submitted",
		zap.String("report_id", r.ID),
		zap.String("reporter_id", reporterID),
		zap.Bool("emergency", r.Emergency),
		zap.String("condition", string(r.Condition)))
	s.publish(ctx, feed.EventCreated, r)
	return r, nil
}

// Get returns one report.
func (s *Service) Get(ctx context.Context, id string) (*model.Report, error) {
	return s.store.GetReport(ctx, id)
}

// ListOptions combines the store filter with viewer-relative ranking.
type ListOptions struct {
	Filter   model.ReportFilter
	Viewer   *model.Location
	Sort     proximity.SortKey
	RadiusKm float64
}

// List returns matching reports, annotated with distance when a viewer is
// given, then radius-filtered and sorted. The store limit applies first, so
// ranking only sees the newest Filter.EffectiveLimit() reports.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*model.Report, error) {
	reports, err := s.store.ListReports(ctx, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if opts.Viewer != nil {
		proximity.Annotate(*opts.Viewer, reports)
		if opts.RadiusKm > 0 {
			reports = proximity.WithinRadius(reports, opts.RadiusKm)
		}
	}
	proximity.Sort(reports, opts.Sort)
	return reports, nil
}

// Claim makes orgID the rescuer of a pending report. Exactly one of several
// concurrent claims succeeds; the rest get ErrAlreadyClaimed.
func (s *Service) Claim(ctx context.Context, reportID, orgID string) (*model.Report, error) {
	if orgID == "" {
		return nil, ErrMissingIdentity
	}
	r, err := s.store.ClaimReport(ctx, reportID, orgID)
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			s.log.Info("claim rejected", zap.String("report_id", reportID), zap.String("org_id", orgID))
		}
		return nil, err
	}
	s.log.Info("report claimed", zap.String("report_id", reportID), zap.String("org_id", orgID))
	s.publish(ctx, feed.EventClaimed, r)
	return r, nil
}

// SetStatus moves a claimed report along the transition table. Only the
// rescuer may do so. The reporter is notified on success; a failed
// notification is logged and does not undo the change.
func (s *Service) SetStatus(ctx context.Context, reportID string, next model.Status, actingOrgID string) (*model.Report, error) {
	if actingOrgID == "" {
		return nil, ErrMissingIdentity
	}
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	r, err := s.store.UpdateReport(ctx, reportID, func(r *model.Report) error {
		if err := authorize(r, actingOrgID); err != nil {
			return err
		}
		if !r.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
		}
		r.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("report status changed",
		zap.String("report_id", reportID),
		zap.String("org_id", actingOrgID),
		zap.String("status", string(next)))
	s.notifyReporter(ctx, r, next, actingOrgID)
	s.publish(ctx, feed.EventStatus, r)
	return r, nil
}

// AssignTeam hands a claimed, active report to one of the rescuer's teams.
func (s *Service) AssignTeam(ctx context.Context, reportID string, team model.Team, actingOrgID string) (*model.Report, error) {
	if actingOrgID == "" {
		return nil, ErrMissingIdentity
	}
	if team.OrgID != actingOrgID {
		return nil, ErrForeignTeam
	}
	r, err := s.store.UpdateReport(ctx, reportID, func(r *model.Report) error {
		if err := authorize(r, actingOrgID); err != nil {
			return err
		}
		if r.Status != model.StatusAcknowledged && r.Status != model.StatusOngoing {
			return fmt.Errorf("%w: cannot assign a team to a %s report", ErrInvalidTransition, r.Status)
		}
		r.AssignedTeam = team.Name
		r.AssignedTeamID = team.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("team assigned",
		zap.String("report_id", reportID),
		zap.String("org_id", actingOrgID),
		zap.String("team_id", team.ID))
	s.publish(ctx, feed.EventTeam, r)
	return r, nil
}

func authorize(r *model.Report, orgID string) error {
	if !r.Claimed() {
		return ErrNotClaimed
	}
	if !r.ClaimedBy(orgID) {
		return ErrNotRescuer
	}
	return nil
}

func (s *Service) notifyReporter(ctx context.Context, r *model.Report, next model.Status, orgID string) {
	if s.sender == nil || r.ReporterID == "" {
		return
	}
	orgName := ""
	if s.profiles != nil {
		if p, err := s.profiles.Profile(ctx, orgID); err == nil {
			orgName = p.DisplayName
		} else if !errors.Is(err, model.ErrNotFound) {
			s.log.Warn("organization lookup failed", zap.String("org_id", orgID), zap.Error(err))
		}
	}
	n := notify.Compose(r, next, orgName, s.now())
	if err := s.sender.Send(ctx, n); err != nil {
		s.log.Error("notification not sent",
			zap.String("report_id", r.ID),
			zap.String("user_id", r.ReporterID),
			zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, typ feed.EventType, r *model.Report) {
	if s.broker == nil {
		return
	}
	ev := feed.Event{Type: typ, Report: r.Clone(), At: s.now().UTC()}
	if err := s.broker.Publish(ctx, ev); err != nil {
		s.log.Warn("feed publish failed", zap.String("report_id", r.ID), zap.Error(err))
	}
}
