package availability

import (
	"context"
	"errors"
	"testing"

	"barberbook/internal/models"
	"barberbook/internal/timeofday"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) BookedSlots(ctx context.Context, shopID int64, date models.Date) ([]timeofday.TimeOfDay, error) {
	args := m.Called(ctx, shopID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]timeofday.TimeOfDay), args.Error(1)
}

// 2025-10-20 is a Monday.
var monday = models.Date{Year: 2025, Month: 10, Day: 20}

func clocks(list []timeofday.TimeOfDay) []string {
	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.String())
	}
	return out
}

func tods(values ...string) []timeofday.TimeOfDay {
	out := make([]timeofday.TimeOfDay, 0, len(values))
	for _, v := range values {
		out = append(out, timeofday.MustParse(v))
	}
	return out
}

func TestDefaultGrid(t *testing.T) {
	grid, err := DefaultSchedule().Grid(monday)
	require.NoError(t, err)
	require.Len(t, grid, 23)
	assert.Equal(t, "08:00", grid[0].String())
	assert.Equal(t, "08:30", grid[1].String())
	assert.Equal(t, "19:00", grid[len(grid)-1].String())
}

func TestScheduleGrid(t *testing.T) {
	t.Run("Lunch", func(t *testing.T) {
		s := Schedule{Open: "10:00", Close: "15:00", StepMinutes: 60, LunchStart: "12:00", LunchEnd: "13:00"}
		grid, err := s.Grid(monday)
		require.NoError(t, err)
		assert.Equal(t, []string{"10:00", "11:00", "13:00", "14:00", "15:00"}, clocks(grid))
	})

	t.Run("ExplicitSlotsSortedUnique", func(t *testing.T) {
		s := Schedule{Slots: []string{"12:00", "09:30", "12:00", "10:00:00"}}
		grid, err := s.Grid(monday)
		require.NoError(t, err)
		assert.Equal(t, []string{"09:30", "10:00", "12:00"}, clocks(grid))
	})

	t.Run("ClosedWeekday", func(t *testing.T) {
		s := Schedule{ClosedWeekdays: []string{"Mon"}}
		grid, err := s.Grid(monday)
		require.NoError(t, err)
		assert.NotNil(t, grid)
		assert.Empty(t, grid)

		grid, err = s.Grid(monday.AddDays(1))
		require.NoError(t, err)
		assert.Len(t, grid, 23)
	})

	t.Run("ClosedDate", func(t *testing.T) {
		s := Schedule{ClosedDates: []string{"2025-10-20"}}
		assert.True(t, s.IsClosed(monday))
		assert.False(t, s.IsClosed(monday.AddDays(1)))
	})

	t.Run("EmptySlotsMeansNoGrid", func(t *testing.T) {
		var s Schedule
		require.NoError(t, yaml.Unmarshal([]byte("slots: []\n"), &s))
		require.NotNil(t, s.Slots)
		require.NoError(t, s.Validate())

		grid, err := s.Grid(monday)
		require.NoError(t, err)
		assert.NotNil(t, grid)
		assert.Empty(t, grid)
		assert.Empty(t, s.WithDefaults().Open)
	})

	t.Run("NullSlotsUsesDefaults", func(t *testing.T) {
		var s Schedule
		require.NoError(t, yaml.Unmarshal([]byte("slots:\nstep_minutes: 60\n"), &s))

		grid, err := s.Grid(monday)
		require.NoError(t, err)
		assert.Len(t, grid, 12)
	})

	t.Run("StepPastMidnightStops", func(t *testing.T) {
		s := Schedule{Open: "22:00", Close: "23:59", StepMinutes: 90}
		grid, err := s.Grid(monday)
		require.NoError(t, err)
		assert.Equal(t, []string{"22:00", "23:30"}, clocks(grid))
	})
}

func TestScheduleValidate(t *testing.T) {
	assert.NoError(t, DefaultSchedule().Validate())
	assert.NoError(t, Schedule{}.Validate())
	assert.Error(t, Schedule{Open: "19:00", Close: "08:00"}.Validate())
	assert.Error(t, Schedule{Open: "8h"}.Validate())
	assert.Error(t, Schedule{LunchStart: "12:00"}.Validate())
	assert.Error(t, Schedule{LunchStart: "13:00", LunchEnd: "12:00"}.Validate())
	assert.Error(t, Schedule{ClosedWeekdays: []string{"someday"}}.Validate())
	assert.Error(t, Schedule{ClosedDates: []string{"20.10.2025"}}.Validate())
	assert.Error(t, Schedule{Slots: []string{"25:00"}}.Validate())
}

func TestAvailableSlots(t *testing.T) {
	ctx := context.Background()
	calc := NewCalculator(Schedules{
		Default: DefaultSchedule(),
		Shops: map[int64]Schedule{
			7: {Open: "08:00", Close: "10:00", StepMinutes: 30},
		},
	}, nil)

	t.Run("SubtractsBooked", func(t *testing.T) {
		src := new(mockSource)
		src.On("BookedSlots", ctx, int64(7), monday).Return(tods("08:30", "09:30", "12:00"), nil).Once()

		got := calc.AvailableSlots(ctx, 7, monday, src)
		assert.Equal(t, []string{"08:00", "09:00", "10:00"}, clocks(got))
		src.AssertExpectations(t)
	})

	t.Run("NineAndNineThirtyBooked", func(t *testing.T) {
		src := new(mockSource)
		src.On("BookedSlots", ctx, int64(7), monday).Return(tods("09:00", "09:30"), nil).Once()

		got := calc.AvailableSlots(ctx, 7, monday, src)
		assert.Equal(t, []string{"08:00", "08:30", "10:00"}, clocks(got))
		src.AssertExpectations(t)
	})

	t.Run("EmptyConfiguredGrid", func(t *testing.T) {
		empty := NewCalculator(Schedules{
			Default: DefaultSchedule(),
			Shops:   map[int64]Schedule{3: {Slots: []string{}}},
		}, nil)
		src := new(mockSource)

		got := empty.AvailableSlots(ctx, 3, monday, src)
		assert.NotNil(t, got)
		assert.Empty(t, got)
		assert.False(t, empty.InGrid(3, monday, timeofday.MustParse("08:00")))
		src.AssertNotCalled(t, "BookedSlots", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("FallbackToFullGrid", func(t *testing.T) {
		src := new(mockSource)
		src.On("BookedSlots", ctx, int64(7), monday).Return(nil, errors.New("offline")).Once()

		got := calc.AvailableSlots(ctx, 7, monday, src)
		assert.Equal(t, []string{"08:00", "08:30", "09:00", "09:30", "10:00"}, clocks(got))
	})

	t.Run("DefaultShop", func(t *testing.T) {
		src := new(mockSource)
		src.On("BookedSlots", ctx, int64(1), monday).Return([]timeofday.TimeOfDay{}, nil).Once()

		got := calc.AvailableSlots(ctx, 1, monday, src)
		assert.Len(t, got, 23)
	})

	t.Run("ClosedDaySkipsSource", func(t *testing.T) {
		closed := NewCalculator(Schedules{Default: Schedule{ClosedWeekdays: []string{"monday"}}}, nil)
		src := new(mockSource)

		got := closed.AvailableSlots(ctx, 1, monday, src)
		assert.NotNil(t, got)
		assert.Empty(t, got)
		src.AssertNotCalled(t, "BookedSlots", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("NeverIncludesBooked", func(t *testing.T) {
		booked := tods("08:00", "11:30", "19:00", "13:00")
		src := new(mockSource)
		src.On("BookedSlots", ctx, int64(1), monday).Return(booked, nil).Once()

		got := calc.AvailableSlots(ctx, 1, monday, src)
		for _, b := range booked {
			assert.NotContains(t, got, b)
		}
		assert.Len(t, got, 19)
		for i := 1; i < len(got); i++ {
			assert.True(t, got[i-1].Before(got[i]))
		}
	})
}

func TestInGrid(t *testing.T) {
	calc := NewCalculator(Schedules{Default: DefaultSchedule()}, nil)
	assert.True(t, calc.InGrid(1, monday, timeofday.MustParse("19:00")))
	assert.False(t, calc.InGrid(1, monday, timeofday.MustParse("19:30")))
	assert.False(t, calc.InGrid(1, monday, timeofday.MustParse("08:15")))
}
