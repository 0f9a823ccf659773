package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barberbook/internal/domain"
	"barberbook/internal/events"
	"barberbook/internal/lifecycle"
	"barberbook/internal/metrics"
	"barberbook/internal/models"
	"barberbook/internal/store"
)

var eventTypes = map[lifecycle.Event]string{
	lifecycle.EventCreate:     events.EventAppointmentCreated,
	lifecycle.EventConfirm:    events.EventAppointmentConfirmed,
	lifecycle.EventReschedule: events.EventAppointmentRescheduled,
	lifecycle.EventCancel:     events.EventAppointmentCancelled,
	lifecycle.EventExpire:     events.EventAppointmentExpired,
	lifecycle.EventComplete:   events.EventAppointmentCompleted,
}

// RequestTransition applies a caller event to one of the actor's appointments.
//
// The event is checked locally first so an illegal request never reaches the
// authority. On an authority failure the stored record is left unchanged and
// the error is returned for the caller to retry.
func (s *AppointmentService) RequestTransition(ctx context.Context, actor store.Actor, id int64, ev lifecycle.Event, p lifecycle.Payload, now time.Time) (models.Appointment, error) {
	now = now.In(s.loc)

	switch ev {
	case lifecycle.EventConfirm, lifecycle.EventCancel, lifecycle.EventReschedule, lifecycle.EventComplete:
	case lifecycle.EventCreate, lifecycle.EventExpire:
		return models.Appointment{}, fmt.Errorf("%w: %s cannot be requested directly", domain.ErrInvalidRequest, ev)
	default:
		return models.Appointment{}, fmt.Errorf("%w: %q", lifecycle.ErrUnknownEvent, ev)
	}

	st, current, err := s.lookup(ctx, actor, id, now)
	if err != nil {
		return models.Appointment{}, err
	}

	log := s.logger.With().Int64("appointment_id", id).Str("event", string(ev)).Str("actor", actor.Key()).Logger()

	if _, err := s.machine.Apply(current, ev, p, now); err != nil {
		metrics.IncTransition(string(ev), "rejected")
		log.Info().Err(err).Str("status", string(current.Status)).Msg("transition rejected")
		return current, err
	}
	if ev == lifecycle.EventReschedule && !s.calculator.InGrid(current.ShopID, p.Date, *p.Time) {
		metrics.IncTransition(string(ev), "rejected")
		return current, fmt.Errorf("%w: %s %s is not a slot of shop %d", domain.ErrInvalidRequest, p.Date, p.Time, current.ShopID)
	}

	remote, err := s.callAuthority(ctx, current, ev, p)
	if err != nil {
		metrics.IncTransition(string(ev), "remote_error")
		log.Warn().Err(err).Msg("authority refused transition")
		return current, fmt.Errorf("%s appointment %d: %w", ev, id, err)
	}

	updated := *remote
	if updated.Time == nil && updated.RawTime == "" {
		// some endpoints answer without the slot
		updated.Date, updated.Time = current.Date, current.Time
		if ev == lifecycle.EventReschedule {
			updated = updated.WithSlot(p.Date, *p.Time)
		}
	}
	if err := st.Replace(id, updated); err != nil {
		return current, err
	}
	s.syncOtherView(ctx, actor, updated)
	s.saveView(ctx, actor, st.All())

	s.appendJournal(ctx, &models.JournalEntry{
		AppointmentID: id,
		ActorKind:     string(actor.Kind),
		ActorID:       actor.ID,
		Event:         string(ev),
		FromStatus:    current.Status,
		ToStatus:      updated.Status,
		Source:        models.SourceRemote,
		Reason:        updated.CancelledReason,
	})
	s.publishEvent(eventTypes[ev], updated, current.Status, models.SourceRemote, actor)
	metrics.IncTransition(string(ev), "applied")

	log.Info().Str("from", string(current.Status)).Str("to", string(updated.Status)).Msg("transition applied")
	return updated, nil
}

// Book creates an appointment for req.ClientID after checking the slot
// against the shop grid and the booked slots the authority reports.
func (s *AppointmentService) Book(ctx context.Context, req domain.CreateRequest, now time.Time) (models.Appointment, error) {
	now = now.In(s.loc)

	if req.ClientID <= 0 || req.ShopID <= 0 {
		return models.Appointment{}, fmt.Errorf("%w: client and shop are required", domain.ErrInvalidRequest)
	}
	if s.authority == nil {
		return models.Appointment{}, errors.New("no authority configured")
	}

	slot := req.Time
	draft := models.Appointment{ClientID: req.ClientID, ShopID: req.ShopID, BarberID: req.BarberID, ServiceID: req.ServiceID}
	if _, err := s.machine.Apply(draft, lifecycle.EventCreate, lifecycle.Payload{Date: req.Date, Time: &slot}, now); err != nil {
		metrics.IncTransition(string(lifecycle.EventCreate), "rejected")
		return models.Appointment{}, err
	}
	if !s.calculator.InGrid(req.ShopID, req.Date, slot) {
		metrics.IncTransition(string(lifecycle.EventCreate), "rejected")
		return models.Appointment{}, fmt.Errorf("%w: %s %s is not a slot of shop %d", domain.ErrInvalidRequest, req.Date, slot, req.ShopID)
	}

	booked, err := s.authority.BookedSlots(ctx, req.ShopID, req.Date)
	if err == nil {
		for _, b := range booked {
			if b == slot {
				metrics.IncTransition(string(lifecycle.EventCreate), "conflict")
				return models.Appointment{}, fmt.Errorf("book %s %s: %w", req.Date, slot, domain.ErrSlotConflict)
			}
		}
	} else {
		s.logger.Warn().Err(err).Int64("shop_id", req.ShopID).Msg("booked slots unavailable, leaving conflict check to authority")
	}

	created, err := s.authority.Create(ctx, req)
	if err != nil {
		metrics.IncTransition(string(lifecycle.EventCreate), "remote_error")
		return models.Appointment{}, fmt.Errorf("book %s %s: %w", req.Date, slot, err)
	}
	if created == nil || created.ID == 0 {
		metrics.IncTransition(string(lifecycle.EventCreate), "remote_error")
		return models.Appointment{}, &domain.RemoteError{Op: "create", Message: "authority returned no record"}
	}

	a := *created
	if a.Time == nil && a.RawTime == "" {
		a = a.WithSlot(req.Date, slot)
	}
	if a.Status == "" {
		a.Status = models.StatusPending
	}

	client := store.Actor{ID: req.ClientID, Kind: store.KindClient}
	if st, ok := s.loadedStore(client); ok {
		_ = st.Replace(a.ID, a)
		s.saveView(ctx, client, st.All())
	}
	s.syncOtherView(ctx, client, a)

	s.appendJournal(ctx, &models.JournalEntry{
		AppointmentID: a.ID,
		ActorKind:     string(store.KindClient),
		ActorID:       req.ClientID,
		Event:         string(lifecycle.EventCreate),
		ToStatus:      a.Status,
		Source:        models.SourceRemote,
	})
	s.publishEvent(events.EventAppointmentCreated, a, "", models.SourceRemote, client)
	metrics.IncTransition(string(lifecycle.EventCreate), "applied")

	return a, nil
}

// lookup finds id in the actor's store, loading the view when needed.
func (s *AppointmentService) lookup(ctx context.Context, actor store.Actor, id int64, now time.Time) (*store.Store, models.Appointment, error) {
	if st, ok := s.loadedStore(actor); ok {
		if a, found := st.Get(id); found {
			return st, a, nil
		}
	}

	if _, err := s.GetView(ctx, actor, now); err != nil {
		return nil, models.Appointment{}, err
	}
	st := s.storeFor(actor)
	a, found := st.Get(id)
	if !found {
		return nil, models.Appointment{}, fmt.Errorf("appointment %d of %s: %w", id, actor, domain.ErrNotFound)
	}
	return st, a, nil
}

func (s *AppointmentService) callAuthority(ctx context.Context, a models.Appointment, ev lifecycle.Event, p lifecycle.Payload) (*models.Appointment, error) {
	var (
		remote *models.Appointment
		err    error
	)
	switch ev {
	case lifecycle.EventConfirm:
		remote, err = s.authority.Confirm(ctx, a.ID)
	case lifecycle.EventCancel:
		remote, err = s.authority.Cancel(ctx, a.ID)
	case lifecycle.EventReschedule:
		remote, err = s.authority.Reschedule(ctx, a.ID, p.Date, *p.Time)
	case lifecycle.EventComplete:
		remote, err = s.authority.Complete(ctx, a.ID)
	}
	if err != nil {
		return nil, err
	}
	if remote == nil || remote.ID != a.ID {
		return nil, &domain.RemoteError{Op: string(ev), ID: a.ID, Message: "authority returned no record"}
	}
	if ev == lifecycle.EventCancel && remote.CancelledReason == "" {
		remote.CancelledReason = p.Reason
	}
	return remote, nil
}

// syncOtherView updates the record in the counterpart's store, if loaded:
// the shop view for a client action and the other way round.
func (s *AppointmentService) syncOtherView(ctx context.Context, actor store.Actor, a models.Appointment) {
	other := store.Actor{ID: a.ShopID, Kind: store.KindShop}
	if actor.Kind == store.KindShop {
		other = store.Actor{ID: a.ClientID, Kind: store.KindClient}
	}
	if other.ID == 0 || other == actor {
		return
	}
	st, ok := s.loadedStore(other)
	if !ok {
		return
	}
	if err := st.Replace(a.ID, a); err != nil {
		s.logger.Warn().Err(err).Str("actor", other.Key()).Msg("sync counterpart view")
		return
	}
	s.saveView(ctx, other, st.All())
}
