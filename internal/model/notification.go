package model

import "time"

// NotificationTypeStatusUpdate is the only notification type the workflow emits.
const NotificationTypeStatusUpdate = "status_update"

// Notification is a per-user feed entry. It is mutated only by its recipient
// marking it read.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Desc      string    `json:"desc"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
	ReportID  string    `json:"reportId"`
	DogName   string    `json:"dogName"`
	Breed     string    `json:"breed"`
	NewStatus Status    `json:"newStatus,omitempty"`
	OrgName   string    `json:"orgName,omitempty"`
}

// Team is an organization-scoped group that reports can be assigned to.
type Team struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Focus   string   `json:"focus"`
	Members []string `json:"members"`
	OrgID   string   `json:"orgId"`
	Status  string   `json:"status"`
}

// ProfileKind tells users and organizations apart.
type ProfileKind string

const (
	ProfileUser         ProfileKind = "user"
	ProfileOrganization ProfileKind = "organization"
)

// Profile is read-only from the backend's point of view; the rescue counters
// are maintained by the profile flows.
type Profile struct {
	ID             string      `json:"id"`
	Kind           ProfileKind `json:"kind"`
	DisplayName    string      `json:"displayName"`
	PhotoURL       string      `json:"photoUrl,omitempty"`
	TotalRescues   int         `json:"totalRescues"`
	MonthlyRescues int         `json:"monthlyRescues"`
}

// LeaderboardPeriod picks the counter the leaderboard ranks by.
type LeaderboardPeriod string

const (
	LeaderboardMonthly LeaderboardPeriod = "monthly"
	LeaderboardTotal   LeaderboardPeriod = "total"
)

// Score returns the counter for period.
func (p *Profile) Score(period LeaderboardPeriod) int {
	if period == LeaderboardMonthly {
		return p.MonthlyRescues
	}
	return p.TotalRescues
}
