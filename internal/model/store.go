package model

import "errors"

// Sentinel errors returned by every store implementation so callers can use
// errors.Is regardless of the backing database.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyClaimed = errors.New("report already claimed")
)

// ReportFilter narrows a report listing. Zero values mean "no constraint";
// results are always ordered by CreatedAt descending.
type ReportFilter struct {
	Statuses      []Status
	ReporterID    string
	RescuerID     string
	UnclaimedOnly bool
	Limit         int
}

// DefaultListLimit caps listings when no limit is given.
const DefaultListLimit = 200

// EffectiveLimit clamps Limit to (0, DefaultListLimit].
func (f ReportFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > DefaultListLimit {
		return DefaultListLimit
	}
	return f.Limit
}

// Match reports whether r satisfies the filter. In-memory stores use it
// directly; SQL stores translate the same fields into WHERE clauses.
func (f ReportFilter) Match(r *Report) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.ReporterID != "" && r.ReporterID != f.ReporterID {
		return false
	}
	if f.RescuerID != "" && !r.ClaimedBy(f.RescuerID) {
		return false
	}
	if f.UnclaimedOnly && r.Claimed() {
		return false
	}
	return true
}
