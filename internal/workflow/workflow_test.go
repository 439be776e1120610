package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/feed"
	"github.com/dharsanguruparan/straymandu/internal/model"
	"github.com/dharsanguruparan/straymandu/internal/notify"
	"github.com/dharsanguruparan/straymandu/internal/proximity"
	"github.com/dharsanguruparan/straymandu/internal/storage"
)

var kathmandu = model.Location{Latitude: 27.7172, Longitude: 85.3240, Address: "Thamel"}

type fixture struct {
	svc    *Service
	store  *storage.MemoryStore
	broker *feed.MemoryBroker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	store.PutProfile(model.Profile{ID: "org-1", Kind: model.ProfileOrganization, DisplayName: "Sneha's Care"})
	store.PutProfile(model.Profile{ID: "org-2", Kind: model.ProfileOrganization, DisplayName: "KAT Centre"})
	broker := feed.NewMemoryBroker(zap.NewNop())
	svc := New(store, notify.NewDirect(store), broker, store, zap.NewNop())
	return &fixture{svc: svc, store: store, broker: broker}
}

func injuredSubmission() Submission {
	return Submission{
		Emergency: true,
		Name:      "Kale",
		Breed:     "Mixed",
		Condition: "Injured",
		Location:  kathmandu,
		ImageURLs: []string{"https://cdn.example.com/kale.jpg"},
	}
}

func (f *fixture) submit(t *testing.T) *model.Report {
	t.Helper()
	r, err := f.svc.Submit(context.Background(), "vol-1", injuredSubmission())
	require.NoError(t, err)
	return r
}

func TestSubmitCreatesPendingUnclaimedReport(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Nil(t, r.RescuerID)
	assert.True(t, r.Emergency)
	assert.Equal(t, model.ConditionInjured, r.Condition)
	assert.Equal(t, model.GenderUnknown, r.Gender)
	assert.False(t, r.CreatedAt.IsZero())

	stored, err := f.svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, "vol-1", stored.ReporterID)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(*Submission){
		"breed":     func(s *Submission) { s.Breed = "  " },
		"location":  func(s *Submission) { s.Location = model.Location{} },
		"imageUrls": func(s *Submission) { s.ImageURLs = nil },
		"condition": func(s *Submission) { s.Condition = "Sleepy" },
		"gender":    func(s *Submission) { s.Gender = "Cat" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			sub := injuredSubmission()
			mutate(&sub)
			_, err := f.svc.Submit(context.Background(), "vol-1", sub)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, field, verr.Field)
		})
	}

	reports, err := f.store.ListReports(context.Background(), model.ReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, reports, "validation failures must not write")
}

func TestSubmitRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), "", injuredSubmission())
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestClaimFirstWins(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t)

	claimed, err := f.svc.Claim(context.Background(), r.ID, "org-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcknowledged, claimed.Status)
	require.NotNil(t, claimed.RescuerID)
	assert.Equal(t, "org-1", *claimed.RescuerID)
	assert.Equal(t, model.UnassignedTeam, claimed.AssignedTeam)

	_, err = f.svc.Claim(context.Background(), r.ID, "org-2")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	stored, err := f.svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, "org-1", *stored.RescuerID)
}

func TestClaimConcurrentExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t)

	const orgs = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	start := make(chan struct{})
	for i := 0; i < orgs; i++ {
		org := "org-" + string(rune('A'+i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.svc.Claim(context.Background(), r.ID, org); err == nil {
				mu.Lock()
				winners = append(winners, org)
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrAlreadyClaimed)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	stored, err := f.svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], *stored.RescuerID)
}

func TestClaimUnknownReport(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Claim(context.Background(), "missing", "org-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatusNotifiesReporterOnce(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t)
	_, err := f.svc.Claim(context.Background(), r.ID, "org-1")
	require.NoError(t, err)

	updated, err := f.svc.SetStatus(context.Background(), r.ID, model.StatusResolved, "org-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, updated.Status)

	notes, err := f.store.ListNotifications(context.Background(), "vol-1", 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	n := notes[0]
	assert.Equal(t, "vol-1", n.UserID)
	assert.Equal(t, model.StatusResolved, n.NewStatus)
	assert.Equal(t, r.ID, n.ReportID)
	assert.Equal(t, "Sneha's Care", n.OrgName)
	assert.False(t, n.IsRead)
	assert.Contains(t, n.Desc, "Kale")
	assert.Contains(t, n.Desc, "resolved")
}

func TestSetStatusRejectsNonRescuer(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t)
	_, err := f.svc.Claim(context.Background(), r.ID, "org-1")
	require.NoError(t, err)

	_, err = f.svc.SetStatus(context.Background(), r.ID, model.StatusOngoing, "org-2")
	assert.ErrorIs(t, err, ErrNotRescuer)

	stored, err := f.svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcknowledged, stored.Status)

	notes, err := f.store.ListNotifications(context.Background(), "vol-1", 0)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestSetStatusRequiresClaim(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t)
	_, err := f.svc.SetStatus(context.Background(), r.ID, model.StatusOngoing, "org-1")
	assert.ErrorIs(t, err, ErrNotClaimed)
}

func TestSetStatusNeverRegresses(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t)
	_, err := f.svc.Claim(context.Background(), r.ID, "org-1")
	require.NoError(t, err)

	_, err = f.svc.SetStatus(context.Background(), r.ID, model.StatusOngoing, "org-1")
	require.NoError(t, err)
	_, err = f.svc.SetStatus(context.Background(), r.ID, model.StatusResolved, "org-1")
	require.NoError(t, err)

	for _, back := range []model.Status{model.StatusPending, model.StatusAcknowledged, model.StatusOngoing, model.StatusResolved} {
		_, err = f.svc.SetStatus(context.Background(), r.ID, back, "org-1")
		assert.ErrorIs(t, err, ErrInvalidTransition, "resolved -> %s", back)
	}

	_, err = f.svc.SetStatus(context.Background(), r.ID, model.StatusCompleted, "org-1")
	require.NoError(t, err)
	for _, st := range model.Statuses {
		_, err = f.svc.SetStatus(context.Background(), r.ID, st, "org-1")
		assert.ErrorIs(t, err, ErrInvalidTransition, "completed -> %s", st)
	}
	_, err = f.svc.SetStatus(context.Background(), r.ID, model.Status("archived"), "org-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAssignTeam(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t)
	_, err := f.svc.Claim(context.Background(), r.ID, "org-1")
	require.NoError(t, err)

	team := model.Team{ID: "team-1", Name: "Night Patrol", OrgID: "org-1"}
	updated, err := f.svc.AssignTeam(context.Background(), r.ID, team, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "Night Patrol", updated.AssignedTeam)
	assert.Equal(t, "team-1", updated.AssignedTeamID)
	assert.Equal(t, model.StatusAcknowledged, updated.Status)

	_, err = f.svc.AssignTeam(context.Background(), r.ID, model.Team{ID: "t2", OrgID: "org-2"}, "org-2")
	assert.ErrorIs(t, err, ErrNotRescuer)

	_, err = f.svc.AssignTeam(context.Background(), r.ID, model.Team{ID: "t2", OrgID: "org-2"}, "org-1")
	assert.ErrorIs(t, err, ErrForeignTeam)

	notes, err := f.store.ListNotifications(context.Background(), "vol-1", 0)
	require.NoError(t, err)
	assert.Empty(t, notes, "team assignment does not notify")
}

func TestAssignTeamRequiresClaim(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t)
	_, err := f.svc.AssignTeam(context.Background(), r.ID, model.Team{ID: "t", OrgID: "org-1"}, "org-1")
	assert.ErrorIs(t, err, ErrNotClaimed)
}

type failingSender struct{ calls int }

func (s *failingSender) Send(context.Context, *model.Notification) error {
	s.calls++
	return errors.New("smtp down")
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	store := storage.NewMemoryStore()
	sender := &failingSender{}
	svc := New(store, sender, nil, nil, zap.NewNop())
	r, err := svc.Submit(context.Background(), "vol-1", injuredSubmission())
	require.NoError(t, err)
	_, err = svc.Claim(context.Background(), r.ID, "org-1")
	require.NoError(t, err)

	updated, err := svc.SetStatus(context.Background(), r.ID, model.StatusOngoing, "org-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOngoing, updated.Status)
	assert.Equal(t, 1, sender.calls)
}

func TestListRanksByDistance(t *testing.T) {
	f := newFixture(t)
	farSub := injuredSubmission()
	farSub.Location = model.Location{Latitude: 28.2096, Longitude: 83.9856}
	far, err := f.svc.Submit(context.Background(), "vol-2", farSub)
	require.NoError(t, err)
	here := f.submit(t)

	viewer := model.Location{Latitude: 27.7172, Longitude: 85.3240}
	reports, err := f.svc.List(context.Background(), ListOptions{
		Filter: model.ReportFilter{Statuses: []model.Status{model.StatusPending}},
		Viewer: &viewer,
		Sort:   proximity.SortDistance,
	})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, here.ID, reports[0].ID)
	assert.Equal(t, 0.0, *reports[0].DistanceKm)
	assert.Equal(t, far.ID, reports[1].ID)

	nearby, err := f.svc.List(context.Background(), ListOptions{Viewer: &viewer, RadiusKm: 5})
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, here.ID, nearby[0].ID)
}

func TestWritesArePublished(t *testing.T) {
	f := newFixture(t)
	events, cancel, err := f.broker.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancel()

	r := f.submit(t)
	_, err = f.svc.Claim(context.Background(), r.ID, "org-1")
	require.NoError(t, err)
	_, err = f.svc.SetStatus(context.Background(), r.ID, model.StatusOngoing, "org-1")
	require.NoError(t, err)

	var types []feed.EventType
	for len(types) < 3 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("only got %v", types)
		}
	}
	assert.Equal(t, []feed.EventType{feed.EventCreated, feed.EventClaimed, feed.EventStatus}, types)
}
