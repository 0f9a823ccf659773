package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"barberbook/internal/availability"
	"barberbook/internal/domain"
	"barberbook/internal/events"
	"barberbook/internal/lifecycle"
	"barberbook/internal/metrics"
	"barberbook/internal/models"
	"barberbook/internal/store"
	"barberbook/internal/sweep"
	"barberbook/internal/timeofday"

	"github.com/rs/zerolog"
)

// Dependencies wires an AppointmentService. Cache, Journal and Events may be nil.
type Dependencies struct {
	Authority  domain.RemoteAuthority
	Machine    *lifecycle.Machine
	Sweeper    *sweep.Sweeper
	Calculator *availability.Calculator
	Cache      domain.ViewCache
	Journal    domain.Journal
	Events     domain.EventPublisher
	Location   *time.Location
	Logger     *zerolog.Logger
}

// AppointmentService is the entry point of the presentation layer: actor
// views, caller transitions, bookings and free slots.
type AppointmentService struct {
	authority  domain.RemoteAuthority
	machine    *lifecycle.Machine
	sweeper    *sweep.Sweeper
	calculator *availability.Calculator
	cache      domain.ViewCache
	journal    domain.Journal
	events     domain.EventPublisher
	loc        *time.Location
	logger     *zerolog.Logger

	mu     sync.Mutex
	stores map[string]*store.Store
}

func NewAppointmentService(deps Dependencies) *AppointmentService {
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "appointment_service").Logger()

	machine := deps.Machine
	if machine == nil {
		machine = lifecycle.NewMachine()
	}
	sweeper := deps.Sweeper
	if sweeper == nil {
		sweeper = sweep.NewSweeper(machine, nil, 0, &l)
	}
	calculator := deps.Calculator
	if calculator == nil {
		calculator = availability.NewCalculator(availability.Schedules{Default: availability.DefaultSchedule()}, &l)
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}

	return &AppointmentService{
		authority:  deps.Authority,
		machine:    machine,
		sweeper:    sweeper,
		calculator: calculator,
		cache:      deps.Cache,
		journal:    deps.Journal,
		events:     deps.Events,
		loc:        loc,
		logger:     &l,
		stores:     make(map[string]*store.Store),
	}
}

// GetView loads the actor's appointments from the authority and returns them
// with every stale active record expired. When the authority is unreachable
// the last cached view is re-swept and served instead.
func (s *AppointmentService) GetView(ctx context.Context, actor store.Actor, now time.Time) ([]models.Appointment, error) {
	view, _, err := s.refresh(ctx, actor, now)
	return view, err
}

// Filtered is GetView narrowed to one classification.
func (s *AppointmentService) Filtered(ctx context.Context, actor store.Actor, f store.Filter, now time.Time) ([]models.Appointment, error) {
	view, err := s.GetView(ctx, actor, now)
	if err != nil {
		return nil, err
	}
	return store.Apply(view, f, now.In(s.loc)), nil
}

// Location is the timezone all date and time comparisons use.
func (s *AppointmentService) Location() *time.Location {
	return s.loc
}

// RefreshViews re-sweeps every actor view loaded so far and returns how many
// records expired.
func (s *AppointmentService) RefreshViews(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	actors := make([]store.Actor, 0, len(s.stores))
	for _, st := range s.stores {
		actors = append(actors, st.Actor())
	}
	s.mu.Unlock()

	sort.Slice(actors, func(i, j int) bool { return actors[i].Key() < actors[j].Key() })

	var (
		total int
		errs  []error
	)
	for _, actor := range actors {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		_, n, err := s.refresh(ctx, actor, now)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Tracked lists the actors whose views are held in memory.
func (s *AppointmentService) Tracked() []store.Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Actor, 0, len(s.stores))
	for _, st := range s.stores {
		out = append(out, st.Actor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// GetAvailableSlots returns the free slots of the shop on date.
func (s *AppointmentService) GetAvailableSlots(ctx context.Context, shopID int64, date models.Date) ([]timeofday.TimeOfDay, error) {
	if shopID <= 0 {
		return nil, fmt.Errorf("%w: shop id is required", domain.ErrInvalidRequest)
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", domain.ErrInvalidRequest)
	}

	var src availability.BookedSlotsSource
	if s.authority != nil {
		src = s.authority
	}
	return s.calculator.AvailableSlots(ctx, shopID, date, src), nil
}

func (s *AppointmentService) refresh(ctx context.Context, actor store.Actor, now time.Time) ([]models.Appointment, int, error) {
	now = now.In(s.loc)
	if actor.ID <= 0 {
		return nil, 0, fmt.Errorf("%w: actor id is required", domain.ErrInvalidRequest)
	}
	if s.authority == nil {
		return nil, 0, errors.New("no authority configured")
	}

	st := s.storeFor(actor)
	list, err := st.Load(ctx, s.authority)
	if err != nil {
		cached, ok := s.cachedView(ctx, actor, err)
		if !ok {
			return nil, 0, err
		}
		list = cached
	}

	res := s.sweeper.Run(ctx, list, now, s.authority)
	st.Reset(res.Appointments)
	s.recordExpired(ctx, actor, res)
	s.saveView(ctx, actor, res.Appointments)

	return res.Appointments, len(res.Expired), nil
}

// cachedView returns the last stored view when loadErr is an authority outage.
func (s *AppointmentService) cachedView(ctx context.Context, actor store.Actor, loadErr error) ([]models.Appointment, bool) {
	if s.cache == nil || !domain.IsRetryable(loadErr) {
		return nil, false
	}
	cached, err := s.cache.GetView(ctx, actor.Key())
	if err != nil {
		s.logger.Error().Err(err).Str("actor", actor.Key()).Msg("read cached view")
		return nil, false
	}
	if cached == nil {
		return nil, false
	}

	metrics.IncViewFallback()
	s.logger.Warn().Err(loadErr).Str("actor", actor.Key()).Int("records", len(cached)).Msg("authority unreachable, serving cached view")
	return cached, true
}

func (s *AppointmentService) saveView(ctx context.Context, actor store.Actor, view []models.Appointment) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetView(ctx, actor.Key(), view); err != nil {
		s.logger.Warn().Err(err).Str("actor", actor.Key()).Msg("store view snapshot")
	}
}

func (s *AppointmentService) recordExpired(ctx context.Context, actor store.Actor, res sweep.Result) {
	if len(res.Expired) == 0 {
		return
	}
	byID := make(map[int64]models.Appointment, len(res.Appointments))
	for _, a := range res.Appointments {
		byID[a.ID] = a
	}

	for _, o := range res.Expired {
		a, ok := byID[o.ID]
		if !ok {
			continue
		}
		s.appendJournal(ctx, &models.JournalEntry{
			AppointmentID: a.ID,
			ActorKind:     "system",
			Event:         string(lifecycle.EventExpire),
			FromStatus:    o.From,
			ToStatus:      a.Status,
			Source:        o.Source,
			Reason:        a.CancelledReason,
		})
		s.publishEvent(events.EventAppointmentExpired, a, o.From, o.Source, actor)
	}
}

func (s *AppointmentService) storeFor(actor store.Actor) *store.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[actor.Key()]
	if !ok {
		st = store.New(actor)
		s.stores[actor.Key()] = st
	}
	return st
}

// loadedStore returns the actor's store only if it was loaded before.
func (s *AppointmentService) loadedStore(actor store.Actor) (*store.Store, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[actor.Key()]
	return st, ok
}

func (s *AppointmentService) appendJournal(ctx context.Context, entry *models.JournalEntry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.AppendJournal(ctx, entry); err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", entry.AppointmentID).Msg("append journal")
	}
}

func (s *AppointmentService) publishEvent(eventType string, a models.Appointment, from models.Status, source string, actor store.Actor) {
	if s.events == nil {
		return
	}
	payload := events.AppointmentEventPayload{
		AppointmentID: a.ID,
		ClientID:      a.ClientID,
		ShopID:        a.ShopID,
		BarberID:      a.BarberID,
		Date:          a.Date.String(),
		Time:          a.DisplayTime(),
		FromStatus:    string(from),
		Status:        string(a.Status),
		Reason:        a.CancelledReason,
		Source:        source,
		ActorKind:     string(actor.Kind),
		ActorID:       actor.ID,
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("appointment_id", a.ID).Msg("failed to publish event")
	}
}
