package model

import "fmt"

// Status describes the rescue lifecycle of a report. Declaring it as its own
// string type keeps arbitrary strings out of the workflow.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcknowledged Status = "acknowledged"
	StatusOngoing      Status = "ongoing"
	StatusResolved     Status = "resolved"
	StatusCompleted    Status = "completed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending, StatusAcknowledged, StatusOngoing, StatusResolved, StatusCompleted,
}

// transitions holds the SetStatus targets allowed from each state. pending has
// none because leaving it requires a claim.
var transitions = map[Status][]Status{
	StatusPending:      nil,
	StatusAcknowledged: {StatusOngoing, StatusResolved, StatusCompleted},
	StatusOngoing:      {StatusResolved, StatusCompleted},
	StatusResolved:     {StatusCompleted},
	StatusCompleted:    nil,
}

// ParseStatus rejects anything outside the closed set.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether SetStatus may move a report from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Next returns a copy of the allowed SetStatus targets.
func (s Status) Next() []Status {
	return append([]Status(nil), transitions[s]...)
}

// Terminal reports whether no further transitions exist.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0 && s != StatusPending
}

// Rank orders statuses along the lifecycle; used to assert that status never
// moves backwards.
func (s Status) Rank() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

// Label is the wording used in notifications.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAcknowledged:
		return "acknowledged"
	case StatusOngoing:
		return "in progress"
	case StatusResolved:
		return "resolved"
	case StatusCompleted:
		return "completed"
	}
	return string(s)
}
