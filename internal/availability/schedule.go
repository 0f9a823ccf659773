package availability

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"barberbook/internal/models"
	"barberbook/internal/timeofday"
)

// Schedule describes the bookable grid of one shop.
type Schedule struct {
	Open           string   `yaml:"open"`            // "08:00"
	Close          string   `yaml:"close"`           // "19:00", last bookable slot
	StepMinutes    int      `yaml:"step_minutes"`    // 30
	LunchStart     string   `yaml:"lunch_start"`     // optional
	LunchEnd       string   `yaml:"lunch_end"`       // optional
	Slots          []string `yaml:"slots"`           // explicit grid, replaces open/close; [] means no slots
	ClosedWeekdays []string `yaml:"closed_weekdays"` // "sunday"
	ClosedDates    []string `yaml:"closed_dates"`    // "2025-12-31"
}

// DefaultSchedule is 08:00–19:00 inclusive every 30 minutes, open daily.
func DefaultSchedule() Schedule {
	return Schedule{
		Open:        models.DefaultOpenTime,
		Close:       models.DefaultCloseTime,
		StepMinutes: models.DefaultSlotStepMinutes,
	}
}

// WithDefaults fills the unset grid bounds from DefaultSchedule.
// An explicit Slots list, even an empty one, is kept as is.
func (s Schedule) WithDefaults() Schedule {
	if s.Slots != nil {
		return s
	}
	if s.Open == "" {
		s.Open = models.DefaultOpenTime
	}
	if s.Close == "" {
		s.Close = models.DefaultCloseTime
	}
	if s.StepMinutes <= 0 {
		s.StepMinutes = models.DefaultSlotStepMinutes
	}
	return s
}

func (s Schedule) Validate() error {
	s = s.WithDefaults()

	if s.Slots != nil {
		for _, v := range s.Slots {
			if _, err := timeofday.Parse(v); err != nil {
				return fmt.Errorf("slots: %w", err)
			}
		}
	} else {
		open, err := timeofday.Parse(s.Open)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		closing, err := timeofday.Parse(s.Close)
		if err != nil {
			return fmt.Errorf("close: %w", err)
		}
		if closing.Before(open) {
			return fmt.Errorf("close %s is before open %s", closing, open)
		}
	}

	if (s.LunchStart == "") != (s.LunchEnd == "") {
		return errors.New("lunch_start and lunch_end must be set together")
	}
	if s.LunchStart != "" {
		if _, _, err := s.lunch(); err != nil {
			return err
		}
	}

	for _, d := range s.ClosedWeekdays {
		if _, err := parseWeekday(d); err != nil {
			return err
		}
	}
	for _, d := range s.ClosedDates {
		if _, err := models.ParseDate(d); err != nil {
			return fmt.Errorf("closed_dates: %w", err)
		}
	}
	return nil
}

// IsClosed reports whether the shop takes no bookings on date.
func (s Schedule) IsClosed(date models.Date) bool {
	for _, d := range s.ClosedWeekdays {
		if wd, err := parseWeekday(d); err == nil && wd == date.Weekday() {
			return true
		}
	}
	for _, d := range s.ClosedDates {
		if cd, err := models.ParseDate(d); err == nil && cd == date {
			return true
		}
	}
	return false
}

// Grid returns the ascending, duplicate-free slots of date.
// A closed day yields an empty, non-nil slice.
func (s Schedule) Grid(date models.Date) ([]timeofday.TimeOfDay, error) {
	if s.IsClosed(date) {
		return []timeofday.TimeOfDay{}, nil
	}
	s = s.WithDefaults()

	var grid []timeofday.TimeOfDay
	if s.Slots != nil {
		for _, v := range s.Slots {
			t, err := timeofday.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("slots: %w", err)
			}
			grid = append(grid, t)
		}
	} else {
		open, err := timeofday.Parse(s.Open)
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		closing, err := timeofday.Parse(s.Close)
		if err != nil {
			return nil, fmt.Errorf("close: %w", err)
		}
		for m := open.MinuteOfDay(); m <= closing.MinuteOfDay(); m += s.StepMinutes {
			t, ok := timeofday.FromMinutes(m)
			if !ok {
				break
			}
			grid = append(grid, t)
		}
	}

	if s.LunchStart != "" && s.LunchEnd != "" {
		from, to, err := s.lunch()
		if err != nil {
			return nil, err
		}
		kept := grid[:0]
		for _, t := range grid {
			if t.MinuteOfDay() >= from.MinuteOfDay() && t.MinuteOfDay() < to.MinuteOfDay() {
				continue
			}
			kept = append(kept, t)
		}
		grid = kept
	}

	return sortUnique(grid), nil
}

func (s Schedule) lunch() (timeofday.TimeOfDay, timeofday.TimeOfDay, error) {
	from, err := timeofday.Parse(s.LunchStart)
	if err != nil {
		return timeofday.TimeOfDay{}, timeofday.TimeOfDay{}, fmt.Errorf("lunch_start: %w", err)
	}
	to, err := timeofday.Parse(s.LunchEnd)
	if err != nil {
		return timeofday.TimeOfDay{}, timeofday.TimeOfDay{}, fmt.Errorf("lunch_end: %w", err)
	}
	if !from.Before(to) {
		return timeofday.TimeOfDay{}, timeofday.TimeOfDay{}, fmt.Errorf("lunch %s-%s is empty", from, to)
	}
	return from, to, nil
}

func sortUnique(list []timeofday.TimeOfDay) []timeofday.TimeOfDay {
	sort.Slice(list, func(i, j int) bool { return list[i].Before(list[j]) })
	out := make([]timeofday.TimeOfDay, 0, len(list))
	for i, t := range list {
		if i > 0 && t == list[i-1] {
			continue
		}
		out = append(out, t)
	}
	return out
}

func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
