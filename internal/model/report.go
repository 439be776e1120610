// Package model contains the struct definitions shared across packages: reports,
// notifications, teams and profiles.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Gender of the reported dog.
type Gender string

const (
	GenderMale    Gender = "Male"
	GenderFemale  Gender = "Female"
	GenderUnknown Gender = "Unknown"
)

// ParseGender accepts the values the app sends, case-insensitively. An empty
// value means Unknown.
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return GenderUnknown, nil
	case "male":
		return GenderMale, nil
	case "female":
		return GenderFemale, nil
	case "unknown":
		return GenderUnknown, nil
	}
	return "", fmt.Errorf("unknown gender %q", s)
}

// Condition is the observed state of the dog at submission time.
type Condition string

const (
	ConditionNeutral    Condition = "Neutral"
	ConditionHealthy    Condition = "Healthy"
	ConditionCruelty    Condition = "Cruelty"
	ConditionInjured    Condition = "Injured"
	ConditionAggressive Condition = "Aggressive"
	ConditionUnknown    Condition = "Unknown"
	// ConditionCritical is still sent by older app builds.
	ConditionCritical Condition = "Critical"
)

var conditions = []Condition{
	ConditionNeutral, ConditionHealthy, ConditionCruelty, ConditionInjured,
	ConditionAggressive, ConditionUnknown, ConditionCritical,
}

// ParseCondition maps free input onto a Condition. An empty value means Unknown.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ConditionUnknown, nil
	}
	for _, c := range conditions {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown condition %q", s)
}

// Location is a point on the map plus an optional human-readable address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Valid reports whether the coordinates are in range and not the zero point,
// which the app sends when GPS was unavailable.
func (l Location) Valid() bool {
	if l.Latitude == 0 && l.Longitude == 0 {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// UnassignedTeam is written to AssignedTeam when a report is claimed.
const UnassignedTeam = "Unassigned"

// Report is a single stray-dog sighting. Only Status, RescuerID and the team
// fields change after creation.
type Report struct {
	ID              string    `json:"id"`
	ReporterID      string    `json:"reporterId"`
	Emergency       bool      `json:"emergency"`
	Name            string    `json:"name"`
	Breed           string    `json:"breed"`
	Gender          Gender    `json:"gender"`
	Color           string    `json:"color"`
	Characteristics string    `json:"characteristics"`
	Description     string    `json:"description"`
	Condition       Condition `json:"condition"`
	Location        Location  `json:"location"`
	ImageURLs       []string  `json:"imageUrls"`
	Status          Status    `json:"status"`
	RescuerID       *string   `json:"rescuerID"`
	AssignedTeam    string    `json:"assignedTeam,omitempty"`
	AssignedTeamID  string    `json:"assignedTeamId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	// DistanceKm is computed per viewer and never stored.
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

// Claimed reports whether an organization owns the report.
func (r *Report) Claimed() bool {
	return r.RescuerID != nil && *r.RescuerID != ""
}

// ClaimedBy reports whether orgID is the report's rescuer.
func (r *Report) ClaimedBy(orgID string) bool {
	return r.Claimed() && orgID != "" && *r.RescuerID == orgID
}

// DogName returns the name given at submission or a placeholder.
func (r *Report) DogName() string {
	if n := strings.TrimSpace(r.Name); n != "" {
		return n
	}
	return "the dog"
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (r *Report) Clone() *Report {
	out := *r
	if r.ImageURLs != nil {
		out.ImageURLs = append([]string(nil), r.ImageURLs...)
	}
	if r.RescuerID != nil {
		id := *r.RescuerID
		out.RescuerID = &id
	}
	if r.DistanceKm != nil {
		d := *r.DistanceKm
		out.DistanceKm = &d
	}
	return &out
}
