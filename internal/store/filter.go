package store

import (
	"fmt"
	"strings"
	"time"

	"barberbook/internal/models"
)

type Class int

const (
	ClassUpcoming Class = iota
	ClassPast
)

func (c Class) String() string {
	if c == ClassPast {
		return "past"
	}
	return "upcoming"
}

// Classify places an appointment before or after now.
func Classify(a models.Appointment, now time.Time) Class {
	if a.IsPast(now) {
		return ClassPast
	}
	return ClassUpcoming
}

type Filter string

const (
	FilterAll             Filter = "all"
	FilterUpcoming        Filter = "upcoming"
	FilterCancelled       Filter = "cancelled"
	FilterPending         Filter = "pending"
	FilterConfirmed       Filter = "confirmed"
	FilterCompletedOrPast Filter = "completed_or_past"
)

// StatusGroups are the filters that partition any appointment set.
var StatusGroups = []Filter{FilterCancelled, FilterPending, FilterConfirmed, FilterCompletedOrPast}

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterUpcoming, FilterCancelled, FilterPending, FilterConfirmed, FilterCompletedOrPast:
		return f, nil
	case "past":
		return FilterCompletedOrPast, nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

// Match reports whether a belongs to f at now.
// Pending (which includes scheduled) and confirmed only hold upcoming records;
// once the slot passes a record moves to completed_or_past.
func (f Filter) Match(a models.Appointment, now time.Time) bool {
	switch f {
	case FilterAll:
		return true
	case FilterUpcoming:
		return a.Status.IsActive() && Classify(a, now) == ClassUpcoming
	case FilterCancelled:
		return a.Status == models.StatusCancelled
	case FilterPending:
		return (a.Status == models.StatusPending || a.Status == models.StatusScheduled) &&
			Classify(a, now) == ClassUpcoming
	case FilterConfirmed:
		return a.Status == models.StatusConfirmed && Classify(a, now) == ClassUpcoming
	case FilterCompletedOrPast:
		return a.Status == models.StatusCompleted ||
			(Classify(a, now) == ClassPast && a.Status != models.StatusCancelled)
	default:
		return false
	}
}

// Apply keeps the records matching f, preserving order.
func Apply(list []models.Appointment, f Filter, now time.Time) []models.Appointment {
	out := make([]models.Appointment, 0, len(list))
	for _, a := range list {
		if f.Match(a, now) {
			out = append(out, a)
		}
	}
	return out
}

// Group returns the status group of a.
func Group(a models.Appointment, now time.Time) Filter {
	for _, f := range StatusGroups {
		if f.Match(a, now) {
			return f
		}
	}
	return ""
}
