// Package availability computes the free booking slots of a shop on a day.
package availability

import (
	"context"

	"barberbook/internal/metrics"
	"barberbook/internal/models"
	"barberbook/internal/timeofday"

	"github.com/rs/zerolog"
)

// BookedSlotsSource reports the slots already taken at a shop.
type BookedSlotsSource interface {
	BookedSlots(ctx context.Context, shopID int64, date models.Date) ([]timeofday.TimeOfDay, error)
}

// Schedules resolves the grid of each shop.
type Schedules struct {
	Default Schedule
	Shops   map[int64]Schedule
}

// For returns the shop's schedule or the default one.
func (s Schedules) For(shopID int64) Schedule {
	if sch, ok := s.Shops[shopID]; ok {
		return sch
	}
	return s.Default
}

type Calculator struct {
	schedules Schedules
	logger    *zerolog.Logger
}

func NewCalculator(schedules Schedules, logger *zerolog.Logger) *Calculator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Calculator{schedules: schedules, logger: logger}
}

// Grid returns the full slot grid of the shop on date.
func (c *Calculator) Grid(shopID int64, date models.Date) []timeofday.TimeOfDay {
	grid, err := c.schedules.For(shopID).Grid(date)
	if err != nil {
		c.logger.Error().Err(err).Int64("shop_id", shopID).Msg("invalid shop schedule")
		return []timeofday.TimeOfDay{}
	}
	return grid
}

// InGrid reports whether t is a slot of the shop's grid on date.
func (c *Calculator) InGrid(shopID int64, date models.Date, t timeofday.TimeOfDay) bool {
	for _, slot := range c.Grid(shopID, date) {
		if slot == t {
			return true
		}
	}
	return false
}

// AvailableSlots returns the grid minus the booked slots, ascending.
// When the source fails the whole grid is returned.
func (c *Calculator) AvailableSlots(ctx context.Context, shopID int64, date models.Date, src BookedSlotsSource) []timeofday.TimeOfDay {
	grid := c.Grid(shopID, date)
	if len(grid) == 0 || src == nil {
		return grid
	}

	booked, err := src.BookedSlots(ctx, shopID, date)
	if err != nil {
		c.logger.Warn().Err(err).
			Int64("shop_id", shopID).
			Str("date", date.String()).
			Msg("booked slots unavailable, returning full grid")
		metrics.IncAvailabilityFallback()
		return grid
	}

	taken := make(map[timeofday.TimeOfDay]struct{}, len(booked))
	for _, t := range booked {
		taken[t] = struct{}{}
	}

	free := make([]timeofday.TimeOfDay, 0, len(grid))
	for _, t := range grid {
		if _, ok := taken[t]; !ok {
			free = append(free, t)
		}
	}
	return free
}
