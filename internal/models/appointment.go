package models

import (
	"time"

	"barberbook/internal/timeofday"
)

type Appointment struct {
	ID              int64                `json:"id"`
	ClientID        int64                `json:"client_id"`
	ClientName      string               `json:"client_name,omitempty"`
	ShopID          int64                `json:"shop_id"`
	ShopName        string               `json:"shop_name,omitempty"`
	ShopAddress     string               `json:"shop_address,omitempty"`
	ShopPhone       string               `json:"shop_phone,omitempty"`
	BarberID        int64                `json:"barber_id"`
	BarberName      string               `json:"barber_name,omitempty"`
	ServiceID       int64                `json:"service_id"`
	ServiceName     string               `json:"service_name,omitempty"`
	Date            Date                 `json:"date"`
	Time            *timeofday.TimeOfDay `json:"time,omitempty"`
	RawTime         string               `json:"raw_time,omitempty"` // kept for display when Time could not be normalized
	DurationMinutes int                  `json:"duration_minutes"`
	Price           float64              `json:"price"`
	Status          Status               `json:"status"`
	CancelledReason string               `json:"cancelled_reason,omitempty"`
}

// HasTime reports whether the start time is known.
func (a Appointment) HasTime() bool {
	return a.Time != nil
}

// Instant combines Date and Time in loc. Without a time it is midnight.
func (a Appointment) Instant(loc *time.Location) time.Time {
	if a.Time == nil {
		return a.Date.In(loc)
	}
	return a.Time.On(a.Date.In(loc))
}

// IsPast compares the start against now. Without a time only the day
// counts: the appointment is past once its day is before now's day.
func (a Appointment) IsPast(now time.Time) bool {
	if a.Time == nil {
		return a.Date.Before(DateOf(now))
	}
	return a.Instant(now.Location()).Before(now)
}

// DisplayTime is the canonical "HH:MM", the raw wire value, or empty.
func (a Appointment) DisplayTime() string {
	if a.Time != nil {
		return a.Time.String()
	}
	return a.RawTime
}

// WithSlot returns a copy moved to date at t.
func (a Appointment) WithSlot(date Date, t timeofday.TimeOfDay) Appointment {
	a.Date = date
	a.Time = &t
	a.RawTime = ""
	return a
}
