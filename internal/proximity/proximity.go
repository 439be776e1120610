// Package proximity ranks reports relative to a viewer. Everything here is a
// pure function over in-memory slices; list sizes are small enough that no
// spatial index is needed.
package proximity

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
const EarthRadiusKm = 6371.0

// Distance returns the great-circle distance between a and b in kilometres.
func Distance(a, b model.Location) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push h just outside [0,1] for near-antipodal points.
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Round1 rounds to one decimal place for display.
func Round1(km float64) float64 {
	return math.Round(km*10) / 10
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Annotate sets DistanceKm on every report, rounded for display.
func Annotate(viewer model.Location, reports []*model.Report) {
	for _, r := range reports {
		d := Round1(Distance(viewer, r.Location))
		r.DistanceKm = &d
	}
}

// WithinRadius keeps the reports at most km away. Reports without a computed
// distance are dropped.
func WithinRadius(reports []*model.Report, km float64) []*model.Report {
	out := reports[:0:0]
	for _, r := range reports {
		if r.DistanceKm != nil && *r.DistanceKm <= km {
			out = append(out, r)
		}
	}
	return out
}

// SortKey selects the ordering applied by Sort.
type SortKey string

const (
	SortRecent   SortKey = "recent"
	SortDistance SortKey = "distance"
	SortUrgency  SortKey = "urgency"
)

// ParseSortKey maps query input onto a SortKey; empty input means recent.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortRecent:
		return SortRecent, nil
	case SortDistance:
		return SortDistance, nil
	case SortUrgency:
		return SortUrgency, nil
	}
	return "", fmt.Errorf("unknown sort %q", s)
}

// UrgencyRank orders conditions for the urgency sort. Emergency reports rank
// with Critical regardless of the condition picked, so an emergency report
// about a Healthy dog still sorts ahead of a non-emergency Injured one.
func UrgencyRank(r *model.Report) int {
	if r.Emergency {
		return 0
	}
	switch r.Condition {
	case model.ConditionCritical:
		return 0
	case model.ConditionInjured:
		return 1
	case model.ConditionAggressive:
		return 2
	case model.ConditionHealthy:
		return 3
	case model.ConditionNeutral:
		return 4
	default:
		return 5
	}
}

// Sort orders reports in place. The sort is stable so ties keep input order.
// For SortDistance, reports without a distance go last.
func Sort(reports []*model.Report, key SortKey) {
	var less func(a, b *model.Report) bool
	switch key {
	case SortDistance:
		less = func(a, b *model.Report) bool {
			if a.DistanceKm == nil || b.DistanceKm == nil {
				return a.DistanceKm != nil && b.DistanceKm == nil
			}
			return *a.DistanceKm < *b.DistanceKm
		}
	case SortUrgency:
		less = func(a, b *model.Report) bool { return UrgencyRank(a) < UrgencyRank(b) }
	default:
		less = func(a, b *model.Report) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	sort.SliceStable(reports, func(i, j int) bool { return less(reports[i], reports[j]) })
}

// ParsePoint parses "lat,lon" as sent in the near= query parameter.
func ParsePoint(s string) (model.Location, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return model.Location{}, fmt.Errorf("need lat,lon")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return model.Location{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return model.Location{}, fmt.Errorf("invalid longitude: %w", err)
	}
	loc := model.Location{Latitude: lat, Longitude: lon}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return model.Location{}, fmt.Errorf("coordinates out of range")
	}
	return loc, nil
}
