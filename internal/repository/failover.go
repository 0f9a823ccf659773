package repository

import (
	"context"
	"sync/atomic"
	"time"

	"barberbook/internal/domain"
	"barberbook/internal/models"

	"github.com/rs/zerolog"
)

const recoverAfter = time.Minute

// FailoverViewCache writes to the primary cache until it fails, then to the
// fallback, probing the primary again once recoverAfter has passed.
type FailoverViewCache struct {
	primary   domain.ViewCache
	fallback  domain.ViewCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nanoseconds

	recoverAfter time.Duration
}

var _ domain.ViewCache = (*FailoverViewCache)(nil)

func NewFailoverViewCache(primary, fallback domain.ViewCache, logger *zerolog.Logger) *FailoverViewCache {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverViewCache{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: recoverAfter,
	}
}

// Degraded reports whether calls currently go to the fallback.
func (r *FailoverViewCache) Degraded() bool {
	return r.isDown.Load()
}

func (r *FailoverViewCache) markDown(op string, err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary view cache failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

// usePrimary reports whether the next call should try the primary.
func (r *FailoverViewCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > r.recoverAfter
}

func (r *FailoverViewCache) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary view cache recovered")
	}
}

func (r *FailoverViewCache) GetView(ctx context.Context, key string) ([]models.Appointment, error) {
	if r.usePrimary() {
		list, err := r.primary.GetView(ctx, key)
		if err == nil {
			r.recovered()
			if list != nil {
				return list, nil
			}
			// The snapshot may only exist in the fallback from a past outage.
			return r.fallback.GetView(ctx, key)
		}
		r.markDown("get", err)
	}
	return r.fallback.GetView(ctx, key)
}

func (r *FailoverViewCache) SetView(ctx context.Context, key string, appointments []models.Appointment) error {
	if r.usePrimary() {
		err := r.primary.SetView(ctx, key, appointments)
		if err == nil {
			r.recovered()
			// drop a stale fallback copy so it never shadows the primary
			_ = r.fallback.ClearView(ctx, key)
			return nil
		}
		r.markDown("set", err)
	}
	return r.fallback.SetView(ctx, key, appointments)
}

func (r *FailoverViewCache) ClearView(ctx context.Context, key string) error {
	if r.usePrimary() {
		if err := r.primary.ClearView(ctx, key); err != nil {
			r.markDown("clear", err)
		} else {
			r.recovered()
		}
	}
	return r.fallback.ClearView(ctx, key)
}
