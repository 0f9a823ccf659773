package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"barberbook/internal/availability"
	"barberbook/internal/domain"
	"barberbook/internal/events"
	"barberbook/internal/lifecycle"
	"barberbook/internal/models"
	"barberbook/internal/repository"
	"barberbook/internal/store"
	"barberbook/internal/timeofday"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuthority struct {
	mock.Mock
}

func (m *mockAuthority) appointment(args mock.Arguments) (*models.Appointment, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}

func (m *mockAuthority) list(args mock.Arguments) ([]models.Appointment, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Appointment), args.Error(1)
}

func (m *mockAuthority) Cancel(ctx context.Context, id int64) (*models.Appointment, error) {
	return m.appointment(m.Called(ctx, id))
}
func (m *mockAuthority) Reschedule(ctx context.Context, id int64, d models.Date, t timeofday.TimeOfDay) (*models.Appointment, error) {
	return m.appointment(m.Called(ctx, id, d, t))
}
func (m *mockAuthority) Confirm(ctx context.Context, id int64) (*models.Appointment, error) {
	return m.appointment(m.Called(ctx, id))
}
func (m *mockAuthority) Complete(ctx context.Context, id int64) (*models.Appointment, error) {
	return m.appointment(m.Called(ctx, id))
}
func (m *mockAuthority) Create(ctx context.Context, req domain.CreateRequest) (*models.Appointment, error) {
	return m.appointment(m.Called(ctx, req))
}
func (m *mockAuthority) BookedSlots(ctx context.Context, shopID int64, d models.Date) ([]timeofday.TimeOfDay, error) {
	args := m.Called(ctx, shopID, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]timeofday.TimeOfDay), args.Error(1)
}
func (m *mockAuthority) ListForClient(ctx context.Context, id int64) ([]models.Appointment, error) {
	return m.list(m.Called(ctx, id))
}
func (m *mockAuthority) ListForShop(ctx context.Context, id int64) ([]models.Appointment, error) {
	return m.list(m.Called(ctx, id))
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []models.JournalEntry
}

func (f *fakeJournal) AppendJournal(_ context.Context, e *models.JournalEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeJournal) all() []models.JournalEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.JournalEntry(nil), f.entries...)
}

type harness struct {
	svc     *AppointmentService
	auth    *mockAuthority
	journal *fakeJournal
	cache   *repository.MemoryViewCache

	mu        sync.Mutex
	published []events.AppointmentEventPayload
	types     []string
}

func (h *harness) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.types...)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		auth:    &mockAuthority{},
		journal: &fakeJournal{},
		cache:   repository.NewMemoryViewCache(time.Hour),
	}

	bus := events.NewEventBus()
	bus.SubscribeAll(func(ev *events.Event) error {
		p, err := events.DecodeAppointment(ev)
		if err != nil {
			return err
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.types = append(h.types, ev.Type)
		h.published = append(h.published, p)
		return nil
	})

	schedules := availability.Schedules{
		Default: availability.DefaultSchedule(),
		Shops: map[int64]availability.Schedule{
			9: {Open: "08:00", Close: "10:00", StepMinutes: 30},
		},
	}
	h.svc = NewAppointmentService(Dependencies{
		Authority:  h.auth,
		Calculator: availability.NewCalculator(schedules, nil),
		Cache:      h.cache,
		Journal:    h.journal,
		Events:     bus,
	})
	return h
}

var (
	now       = time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)
	today     = models.DateOf(now)
	yesterday = today.AddDays(-1)
	tomorrow  = today.AddDays(1)
	client    = store.Actor{ID: 5, Kind: store.KindClient}
	shop      = store.Actor{ID: 9, Kind: store.KindShop}
	offline   = &domain.RemoteError{Op: "list", StatusCode: 503}
)

func appt(id int64, date models.Date, clock string, status models.Status) models.Appointment {
	t := timeofday.MustParse(clock)
	return models.Appointment{ID: id, ClientID: 5, ShopID: 9, Date: date, Time: &t, Status: status}
}

func ptr(a models.Appointment) *models.Appointment {
	return &a
}

func cancelled(a models.Appointment, reason string) *models.Appointment {
	a.Status = models.StatusCancelled
	a.CancelledReason = reason
	return &a
}

func TestGetView(t *testing.T) {
	ctx := context.Background()

	t.Run("ExpiresPastAppointmentsRemotely", func(t *testing.T) {
		h := newHarness(t)
		past := appt(1, yesterday, "14:00", models.StatusConfirmed)
		future := appt(2, tomorrow, "09:00", models.StatusPending)
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{past, future}, nil)
		h.auth.On("Cancel", mock.Anything, int64(1)).Return(cancelled(past, ""), nil)

		view, err := h.svc.GetView(ctx, client, now)
		require.NoError(t, err)
		require.Len(t, view, 2)

		assert.Equal(t, models.StatusCancelled, view[0].Status)
		assert.Equal(t, models.ReasonExpired, view[0].CancelledReason)
		assert.Equal(t, models.StatusPending, view[1].Status)

		entries := h.journal.all()
		require.Len(t, entries, 1)
		assert.Equal(t, models.SourceRemote, entries[0].Source)
		assert.Equal(t, models.StatusConfirmed, entries[0].FromStatus)
		assert.Equal(t, []string{events.EventAppointmentExpired}, h.eventTypes())

		cached, err := h.cache.GetView(ctx, client.Key())
		require.NoError(t, err)
		assert.Equal(t, view, cached)
		h.auth.AssertExpectations(t)
	})

	t.Run("ExpiresLocallyWhenCancelFails", func(t *testing.T) {
		h := newHarness(t)
		past := appt(1, yesterday, "14:00", models.StatusPending)
		h.auth.On("ListForShop", mock.Anything, int64(9)).Return([]models.Appointment{past}, nil)
		h.auth.On("Cancel", mock.Anything, int64(1)).Return(nil, &domain.RemoteError{Op: "cancel", ID: 1, StatusCode: 500})

		view, err := h.svc.GetView(ctx, shop, now)
		require.NoError(t, err)
		require.Len(t, view, 1)
		assert.Equal(t, models.StatusCancelled, view[0].Status)
		assert.Equal(t, models.ReasonExpired, view[0].CancelledReason)

		entries := h.journal.all()
		require.Len(t, entries, 1)
		assert.Equal(t, models.SourceLocal, entries[0].Source)
	})

	t.Run("ServesCachedViewWhenAuthorityDown", func(t *testing.T) {
		h := newHarness(t)
		future := appt(2, tomorrow, "09:00", models.StatusPending)
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{future}, nil).Once()
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return(nil, offline).Once()
		h.auth.On("Cancel", mock.Anything, int64(2)).Return(nil, offline)

		_, err := h.svc.GetView(ctx, client, now)
		require.NoError(t, err)

		later := now.Add(48 * time.Hour)
		view, err := h.svc.GetView(ctx, client, later)
		require.NoError(t, err)
		require.Len(t, view, 1)
		assert.Equal(t, models.StatusCancelled, view[0].Status)
		assert.Equal(t, models.ReasonExpired, view[0].CancelledReason)
	})

	t.Run("PropagatesErrorWithoutSnapshot", func(t *testing.T) {
		h := newHarness(t)
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return(nil, offline)

		_, err := h.svc.GetView(ctx, client, now)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrRemote)
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("RejectsMissingActor", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.GetView(ctx, store.Actor{Kind: store.KindClient}, now)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestFiltered(t *testing.T) {
	h := newHarness(t)
	list := []models.Appointment{
		appt(1, tomorrow, "10:00", models.StatusPending),
		appt(2, tomorrow, "11:00", models.StatusConfirmed),
		appt(3, yesterday, "11:00", models.StatusCompleted),
	}
	h.auth.On("ListForClient", mock.Anything, int64(5)).Return(list, nil)

	got, err := h.svc.Filtered(context.Background(), client, store.FilterConfirmed, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestRefreshViews(t *testing.T) {
	h := newHarness(t)
	soon := appt(1, today, "10:00", models.StatusConfirmed)
	h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{soon}, nil)
	h.auth.On("ListForShop", mock.Anything, int64(9)).Return(nil, offline)
	h.auth.On("Cancel", mock.Anything, int64(1)).Return(cancelled(soon, models.ReasonExpired), nil)

	ctx := context.Background()
	_, err := h.svc.GetView(ctx, client, now)
	require.NoError(t, err)
	_, err = h.svc.GetView(ctx, shop, now)
	require.Error(t, err)

	assert.Equal(t, []store.Actor{client, shop}, h.svc.Tracked())

	n, err := h.svc.RefreshViews(ctx, now.Add(2*time.Hour))
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, domain.ErrRemote)
}

func TestRequestTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("CompletePendingIsIllegal", func(t *testing.T) {
		h := newHarness(t)
		pending := appt(1, tomorrow, "10:00", models.StatusPending)
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{pending}, nil)

		got, err := h.svc.RequestTransition(ctx, client, 1, lifecycle.EventComplete, lifecycle.Payload{}, now)
		require.Error(t, err)
		assert.ErrorIs(t, err, lifecycle.ErrIllegalTransition)
		assert.Equal(t, pending, got)

		view, err := h.svc.GetView(ctx, client, now)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, view[0].Status)
		h.auth.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("ConfirmApplied", func(t *testing.T) {
		h := newHarness(t)
		pending := appt(1, tomorrow, "10:00", models.StatusPending)
		confirmed := pending
		confirmed.Status = models.StatusConfirmed
		h.auth.On("ListForShop", mock.Anything, int64(9)).Return([]models.Appointment{pending}, nil).Once()
		h.auth.On("Confirm", mock.Anything, int64(1)).Return(ptr(confirmed), nil)

		got, err := h.svc.RequestTransition(ctx, shop, 1, lifecycle.EventConfirm, lifecycle.Payload{}, now)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, got.Status)

		entries := h.journal.all()
		require.Len(t, entries, 1)
		assert.Equal(t, "confirm", entries[0].Event)
		assert.Equal(t, string(store.KindShop), entries[0].ActorKind)
		assert.Equal(t, models.StatusPending, entries[0].FromStatus)
		assert.Equal(t, models.StatusConfirmed, entries[0].ToStatus)
		assert.Equal(t, []string{events.EventAppointmentConfirmed}, h.eventTypes())

		cached, err := h.cache.GetView(ctx, shop.Key())
		require.NoError(t, err)
		require.Len(t, cached, 1)
		assert.Equal(t, models.StatusConfirmed, cached[0].Status)
	})

	t.Run("RemoteFailureLeavesRecord", func(t *testing.T) {
		h := newHarness(t)
		pending := appt(1, tomorrow, "10:00", models.StatusPending)
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{pending}, nil)
		h.auth.On("Cancel", mock.Anything, int64(1)).Return(nil, &domain.RemoteError{Op: "cancel", ID: 1})

		got, err := h.svc.RequestTransition(ctx, client, 1, lifecycle.EventCancel, lifecycle.Payload{Reason: "sick"}, now)
		require.Error(t, err)
		assert.True(t, domain.IsRetryable(err))
		assert.Contains(t, err.Error(), "appointment 1")
		assert.Equal(t, models.StatusPending, got.Status)

		st, ok := h.svc.loadedStore(client)
		require.True(t, ok)
		stored, _ := st.Get(1)
		assert.Equal(t, models.StatusPending, stored.Status)
		assert.Empty(t, h.journal.all())
	})

	t.Run("CancelKeepsCallerReason", func(t *testing.T) {
		h := newHarness(t)
		pending := appt(1, tomorrow, "10:00", models.StatusPending)
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{pending}, nil)
		h.auth.On("Cancel", mock.Anything, int64(1)).Return(cancelled(pending, ""), nil)

		got, err := h.svc.RequestTransition(ctx, client, 1, lifecycle.EventCancel, lifecycle.Payload{Reason: "sick"}, now)
		require.NoError(t, err)
		assert.Equal(t, "sick", got.CancelledReason)
	})

	t.Run("RescheduleIntoPast", func(t *testing.T) {
		h := newHarness(t)
		pending := appt(1, tomorrow, "10:00", models.StatusPending)
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{pending}, nil)

		at := timeofday.MustParse("08:00")
		_, err := h.svc.RequestTransition(ctx, client, 1, lifecycle.EventReschedule, lifecycle.Payload{Date: today, Time: &at}, now)
		assert.ErrorIs(t, err, lifecycle.ErrSlotNotInFuture)
	})

	t.Run("RescheduleOutsideGrid", func(t *testing.T) {
		h := newHarness(t)
		pending := appt(1, tomorrow, "10:00", models.StatusPending)
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{pending}, nil)

		at := timeofday.MustParse("10:15")
		_, err := h.svc.RequestTransition(ctx, client, 1, lifecycle.EventReschedule, lifecycle.Payload{Date: tomorrow, Time: &at}, now)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("RescheduleConflict", func(t *testing.T) {
		h := newHarness(t)
		pending := appt(1, tomorrow, "10:00", models.StatusPending)
		at := timeofday.MustParse("09:30")
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{pending}, nil)
		h.auth.On("Reschedule", mock.Anything, int64(1), tomorrow, at).
			Return(nil, &domain.RemoteError{Op: "reschedule", ID: 1, StatusCode: 409, Err: domain.ErrSlotConflict})

		_, err := h.svc.RequestTransition(ctx, client, 1, lifecycle.EventReschedule, lifecycle.Payload{Date: tomorrow, Time: &at}, now)
		assert.ErrorIs(t, err, domain.ErrSlotConflict)
		assert.False(t, domain.IsRetryable(err))
	})

	t.Run("RescheduleApplied", func(t *testing.T) {
		h := newHarness(t)
		pending := appt(1, tomorrow, "10:00", models.StatusPending)
		at := timeofday.MustParse("08:30")
		moved := pending.WithSlot(tomorrow, at)
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{pending}, nil)
		h.auth.On("Reschedule", mock.Anything, int64(1), tomorrow, at).Return(ptr(moved), nil)

		got, err := h.svc.RequestTransition(ctx, client, 1, lifecycle.EventReschedule, lifecycle.Payload{Date: tomorrow, Time: &at}, now)
		require.NoError(t, err)
		assert.Equal(t, "08:30", got.DisplayTime())
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("UnknownAppointment", func(t *testing.T) {
		h := newHarness(t)
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{}, nil)

		_, err := h.svc.RequestTransition(ctx, client, 42, lifecycle.EventConfirm, lifecycle.Payload{}, now)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ExpireNotRequestable", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.RequestTransition(ctx, client, 1, lifecycle.EventExpire, lifecycle.Payload{}, now)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestBook(t *testing.T) {
	ctx := context.Background()
	at := timeofday.MustParse("09:30")
	req := domain.CreateRequest{ClientID: 5, ShopID: 9, BarberID: 3, ServiceID: 4, Date: tomorrow, Time: at}

	t.Run("Created", func(t *testing.T) {
		h := newHarness(t)
		h.auth.On("ListForClient", mock.Anything, int64(5)).Return([]models.Appointment{}, nil)
		h.auth.On("BookedSlots", mock.Anything, int64(9), tomorrow).Return([]timeofday.TimeOfDay{timeofday.MustParse("09:00")}, nil)
		h.auth.On("Create", mock.Anything, req).Return(&models.Appointment{ID: 77, ClientID: 5, ShopID: 9, Date: tomorrow, Status: models.StatusPending}, nil)

		_, err := h.svc.GetView(ctx, client, now)
		require.NoError(t, err)

		got, err := h.svc.Book(ctx, req, now)
		require.NoError(t, err)
		assert.Equal(t, int64(77), got.ID)
		assert.Equal(t, "09:30", got.DisplayTime())

		st, _ := h.svc.loadedStore(client)
		_, found := st.Get(77)
		assert.True(t, found)
		assert.Equal(t, []string{events.EventAppointmentCreated}, h.eventTypes())
	})

	t.Run("SlotTaken", func(t *testing.T) {
		h := newHarness(t)
		h.auth.On("BookedSlots", mock.Anything, int64(9), tomorrow).Return([]timeofday.TimeOfDay{at}, nil)

		_, err := h.svc.Book(ctx, req, now)
		assert.ErrorIs(t, err, domain.ErrSlotConflict)
		h.auth.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("OutsideGrid", func(t *testing.T) {
		h := newHarness(t)
		bad := req
		bad.Time = timeofday.MustParse("12:00")
		_, err := h.svc.Book(ctx, bad, now)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("InThePast", func(t *testing.T) {
		h := newHarness(t)
		past := req
		past.Date = yesterday
		_, err := h.svc.Book(ctx, past, now)
		assert.ErrorIs(t, err, lifecycle.ErrSlotNotInFuture)
	})

	t.Run("AuthorityConflict", func(t *testing.T) {
		h := newHarness(t)
		h.auth.On("BookedSlots", mock.Anything, int64(9), tomorrow).Return(nil, offline)
		h.auth.On("Create", mock.Anything, req).Return(nil, &domain.RemoteError{Op: "create", StatusCode: 409, Err: domain.ErrSlotConflict})

		_, err := h.svc.Book(ctx, req, now)
		assert.ErrorIs(t, err, domain.ErrSlotConflict)
	})
}

func TestGetAvailableSlots(t *testing.T) {
	ctx := context.Background()

	t.Run("ExcludesBooked", func(t *testing.T) {
		h := newHarness(t)
		h.auth.On("BookedSlots", mock.Anything, int64(9), tomorrow).
			Return([]timeofday.TimeOfDay{timeofday.MustParse("09:00"), timeofday.MustParse("09:30")}, nil)

		slots, err := h.svc.GetAvailableSlots(ctx, 9, tomorrow)
		require.NoError(t, err)
		got := make([]string, len(slots))
		for i, s := range slots {
			got[i] = s.String()
		}
		assert.Equal(t, []string{"08:00", "08:30", "10:00"}, got)
	})

	t.Run("FullGridOnFailure", func(t *testing.T) {
		h := newHarness(t)
		h.auth.On("BookedSlots", mock.Anything, int64(1), tomorrow).Return(nil, errors.New("boom"))

		slots, err := h.svc.GetAvailableSlots(ctx, 1, tomorrow)
		require.NoError(t, err)
		assert.Len(t, slots, 23)
	})

	t.Run("Validation", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.GetAvailableSlots(ctx, 0, tomorrow)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		_, err = h.svc.GetAvailableSlots(ctx, 9, models.Date{})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}
