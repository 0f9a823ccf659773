// Package lifecycle holds the appointment state machine. It is the only
// code that decides a new status for a record.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"barberbook/internal/models"
	"barberbook/internal/timeofday"
)

// Event is a requested lifecycle change.
type Event string

const (
	EventCreate     Event = "create"
	EventConfirm    Event = "confirm"
	EventReschedule Event = "reschedule"
	EventCancel     Event = "cancel"
	EventExpire     Event = "expire"
	EventComplete   Event = "complete"
)

var (
	ErrIllegalTransition = errors.New("illegal transition")
	ErrSlotNotInFuture   = errors.New("new slot is not in the future")
	ErrNotExpired        = errors.New("appointment has not started yet")
	ErrMissingSlot       = errors.New("date and time are required")
	ErrUnknownEvent      = errors.New("unknown event")
)

func ParseEvent(s string) (Event, error) {
	switch ev := Event(strings.ToLower(strings.TrimSpace(s))); ev {
	case EventCreate, EventConfirm, EventReschedule, EventCancel, EventExpire, EventComplete:
		return ev, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
	}
}

// IllegalTransitionError carries the status the record was in and the event that was refused.
type IllegalTransitionError struct {
	ID     int64
	Status models.Status
	Event  Event
}

func (e *IllegalTransitionError) Error() string {
	status := string(e.Status)
	if status == "" {
		status = "new"
	}
	return fmt.Sprintf("cannot %s appointment %d: status is %s", e.Event, e.ID, status)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// Payload holds the event arguments that some transitions need.
type Payload struct {
	Date   models.Date
	Time   *timeofday.TimeOfDay
	Reason string
	ByShop bool
}

type guard func(a models.Appointment, p Payload, now time.Time) error

type rule struct {
	to    models.Status // empty keeps the current status
	guard guard
	apply func(a models.Appointment, p Payload) models.Appointment
}

// Machine validates and applies transitions from a fixed table.
type Machine struct {
	rules map[models.Status]map[Event]rule
}

func NewMachine() *Machine {
	active := map[Event]rule{
		EventReschedule: {guard: newSlotInFuture, apply: moveSlot},
		EventCancel:     {to: models.StatusCancelled, apply: cancelWith("")},
		EventExpire:     {to: models.StatusCancelled, guard: alreadyStarted, apply: cancelWith(models.ReasonExpired)},
	}

	unconfirmed := withRules(active, map[Event]rule{
		EventConfirm: {to: models.StatusConfirmed},
	})

	return &Machine{
		rules: map[models.Status]map[Event]rule{
			"": {
				EventCreate: {guard: newSlotInFuture, apply: create},
			},
			models.StatusPending:   unconfirmed,
			models.StatusScheduled: unconfirmed,
			models.StatusConfirmed: withRules(active, map[Event]rule{
				EventComplete: {to: models.StatusCompleted},
			}),
		},
	}
}

func withRules(base, extra map[Event]rule) map[Event]rule {
	out := make(map[Event]rule, len(base)+len(extra))
	for ev, r := range base {
		out[ev] = r
	}
	for ev, r := range extra {
		out[ev] = r
	}
	return out
}

// Can reports whether ev is listed for status, ignoring preconditions.
func (m *Machine) Can(status models.Status, ev Event) bool {
	_, ok := m.rules[status][ev]
	return ok
}

// Allowed lists the events a record in status may receive, sorted by name.
func (m *Machine) Allowed(status models.Status) []Event {
	events := make([]Event, 0, len(m.rules[status]))
	for ev := range m.rules[status] {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	return events
}

// Apply returns the record after ev. On any error the input is returned unchanged.
func (m *Machine) Apply(a models.Appointment, ev Event, p Payload, now time.Time) (models.Appointment, error) {
	r, ok := m.rules[a.Status][ev]
	if !ok {
		return a, &IllegalTransitionError{ID: a.ID, Status: a.Status, Event: ev}
	}
	if r.guard != nil {
		if err := r.guard(a, p, now); err != nil {
			return a, fmt.Errorf("%s appointment %d: %w", ev, a.ID, err)
		}
	}

	next := a
	if r.apply != nil {
		next = r.apply(next, p)
	}
	if r.to != "" {
		next.Status = r.to
	}
	return next, nil
}

func newSlotInFuture(_ models.Appointment, p Payload, now time.Time) error {
	if p.Date.IsZero() || p.Time == nil {
		return ErrMissingSlot
	}
	if !p.Time.On(p.Date.In(now.Location())).After(now) {
		return ErrSlotNotInFuture
	}
	return nil
}

func alreadyStarted(a models.Appointment, _ Payload, now time.Time) error {
	if !a.IsPast(now) {
		return ErrNotExpired
	}
	return nil
}

func moveSlot(a models.Appointment, p Payload) models.Appointment {
	return a.WithSlot(p.Date, *p.Time)
}

func cancelWith(fallback string) func(models.Appointment, Payload) models.Appointment {
	return func(a models.Appointment, p Payload) models.Appointment {
		a.CancelledReason = p.Reason
		if a.CancelledReason == "" {
			a.CancelledReason = fallback
		}
		return a
	}
}

func create(a models.Appointment, p Payload) models.Appointment {
	a = a.WithSlot(p.Date, *p.Time)
	a.CancelledReason = ""
	a.Status = models.StatusPending
	if p.ByShop {
		a.Status = models.StatusScheduled
	}
	return a
}
