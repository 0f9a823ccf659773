// Package sweep expires active appointments whose slot has already passed.
package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"barberbook/internal/lifecycle"
	"barberbook/internal/metrics"
	"barberbook/internal/models"

	"github.com/rs/zerolog"
)

// Canceller is the part of the remote authority the sweep calls.
type Canceller interface {
	Cancel(ctx context.Context, id int64) (*models.Appointment, error)
}

// Reconciler takes over a cancel the authority did not accept yet.
type Reconciler interface {
	EnqueueCancel(ctx context.Context, a models.Appointment, cause error) error
}

var errEmptyResponse = errors.New("authority returned no record")

// Outcome describes one expired appointment.
type Outcome struct {
	ID     int64
	From   models.Status
	Source string // models.SourceRemote or models.SourceLocal
	Err    error  // authority failure behind a local expiration
}

type Result struct {
	Appointments []models.Appointment
	Expired      []Outcome
}

type Sweeper struct {
	machine       *lifecycle.Machine
	reconciler    Reconciler
	maxConcurrent int
	logger        *zerolog.Logger
}

// NewSweeper builds a sweeper. reconciler may be nil.
func NewSweeper(machine *lifecycle.Machine, reconciler Reconciler, maxConcurrent int, logger *zerolog.Logger) *Sweeper {
	if machine == nil {
		machine = lifecycle.NewMachine()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = models.DefaultSweepConcurrency
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Sweeper{
		machine:       machine,
		reconciler:    reconciler,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Sweep returns appointments with every stale active record cancelled.
func (s *Sweeper) Sweep(ctx context.Context, appointments []models.Appointment, now time.Time, authority Canceller) []models.Appointment {
	return s.Run(ctx, appointments, now, authority).Appointments
}

// Run is Sweep with a per-record report. Output order matches input order.
func (s *Sweeper) Run(ctx context.Context, appointments []models.Appointment, now time.Time, authority Canceller) Result {
	out := make([]models.Appointment, len(appointments))
	copy(out, appointments)

	var stale []int
	for i, a := range out {
		if a.Status.IsActive() && a.IsPast(now) {
			stale = append(stale, i)
		}
	}
	if len(stale) == 0 {
		return Result{Appointments: out}
	}

	outcomes := make([]Outcome, len(stale))
	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	for n, idx := range stale {
		wg.Add(1)
		sem <- struct{}{}
		go func(n, idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			out[idx], outcomes[n] = s.expire(ctx, out[idx], now, authority)
		}(n, idx)
	}
	wg.Wait()

	res := Result{Appointments: out}
	for _, o := range outcomes {
		if o.Source != "" {
			res.Expired = append(res.Expired, o)
		}
	}
	return res
}

func (s *Sweeper) expire(ctx context.Context, a models.Appointment, now time.Time, authority Canceller) (models.Appointment, Outcome) {
	outcome := Outcome{ID: a.ID, From: a.Status}

	remote, err := s.cancelRemote(ctx, a.ID, authority)
	if err == nil {
		if remote.Status == models.StatusCancelled && remote.CancelledReason == "" {
			remote.CancelledReason = models.ReasonExpired
		}
		if remote.Status != models.StatusCancelled {
			s.logger.Warn().
				Int64("appointment_id", a.ID).
				Str("status", string(remote.Status)).
				Msg("authority kept expired appointment active")
		}
		outcome.Source = models.SourceRemote
		metrics.IncSweepExpired(models.SourceRemote)
		return *remote, outcome
	}

	local, lerr := s.machine.Apply(a, lifecycle.EventExpire, lifecycle.Payload{}, now)
	if lerr != nil {
		s.logger.Error().Err(lerr).Int64("appointment_id", a.ID).Msg("local expire rejected")
		return a, Outcome{}
	}

	s.logger.Warn().Err(err).Int64("appointment_id", a.ID).Msg("authority cancel failed, expired locally")
	outcome.Source = models.SourceLocal
	outcome.Err = err
	metrics.IncSweepExpired(models.SourceLocal)

	if s.reconciler != nil {
		if rerr := s.reconciler.EnqueueCancel(ctx, local, err); rerr != nil {
			s.logger.Error().Err(rerr).Int64("appointment_id", a.ID).Msg("enqueue reconcile cancel")
		}
	}
	return local, outcome
}

func (s *Sweeper) cancelRemote(ctx context.Context, id int64, authority Canceller) (*models.Appointment, error) {
	if authority == nil {
		return nil, errors.New("no authority configured")
	}
	remote, err := authority.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if remote == nil || remote.ID != id {
		return nil, errEmptyResponse
	}
	return remote, nil
}
