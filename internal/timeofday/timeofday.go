// Package timeofday turns the wire shapes used for appointment start times
// into a single comparable value.
package timeofday

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// ErrNormalization is matched by every *NormalizationError.
var ErrNormalization = errors.New("malformed time of day")

// NormalizationError reports a raw value that is not a supported time shape.
type NormalizationError struct {
	Input  string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize time %q: %s", e.Input, e.Reason)
}

func (e *NormalizationError) Is(target error) bool {
	return target == ErrNormalization
}

func malformed(input any, reason string, args ...any) error {
	return &NormalizationError{Input: fmt.Sprint(input), Reason: fmt.Sprintf(reason, args...)}
}

// TimeOfDay is the canonical start time of an appointment.
type TimeOfDay struct {
	Hours   int
	Minutes int
}

// New builds a validated TimeOfDay.
func New(hours, minutes int) (TimeOfDay, error) {
	if hours < 0 || hours > 23 {
		return TimeOfDay{}, malformed(fmt.Sprintf("%d:%d", hours, minutes), "hours %d out of range", hours)
	}
	if minutes < 0 || minutes > 59 {
		return TimeOfDay{}, malformed(fmt.Sprintf("%d:%d", hours, minutes), "minutes %d out of range", minutes)
	}
	return TimeOfDay{Hours: hours, Minutes: minutes}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) TimeOfDay {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Parse normalizes an "HH:MM" or "HH:MM:SS" string.
func Parse(s string) (TimeOfDay, error) {
	return Normalize(Text(s))
}

// FromMinutes converts minutes since midnight. ok is false past the end of the day.
func FromMinutes(total int) (TimeOfDay, bool) {
	if total < 0 || total >= minutesPerDay {
		return TimeOfDay{}, false
	}
	return TimeOfDay{Hours: total / 60, Minutes: total % 60}, true
}

// MinuteOfDay returns minutes since midnight.
func (t TimeOfDay) MinuteOfDay() int {
	return t.Hours*60 + t.Minutes
}

func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.MinuteOfDay() < other.MinuteOfDay()
}

func (t TimeOfDay) Compare(other TimeOfDay) int {
	switch a, b := t.MinuteOfDay(), other.MinuteOfDay(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// On places t on the calendar day of date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hours, t.Minutes, 0, 0, date.Location())
}

// String renders the zero-padded display form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hours, t.Minutes)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	raw, err := Decode(data)
	if err != nil {
		return err
	}
	if raw == nil {
		return malformed(string(data), "time is missing")
	}
	parsed, err := Normalize(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func parseText(s string) (TimeOfDay, error) {
	trimmed := strings.TrimSpace(s)
	parts := strings.Split(trimmed, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, malformed(s, "expected HH:MM or HH:MM:SS")
	}

	hours, err := parseField(parts[0])
	if err != nil {
		return TimeOfDay{}, malformed(s, "hours: %v", err)
	}
	minutes, err := parseField(parts[1])
	if err != nil {
		return TimeOfDay{}, malformed(s, "minutes: %v", err)
	}

	out, err := New(hours, minutes)
	var nerr *NormalizationError
	if errors.As(err, &nerr) {
		return TimeOfDay{}, malformed(s, "%s", nerr.Reason)
	}
	return out, err
}

func parseField(p string) (int, error) {
	if p == "" || len(p) > 2 {
		return 0, fmt.Errorf("want 1 or 2 digits, got %q", p)
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit in %q", p)
		}
	}
	return strconv.Atoi(p)
}
