package repository

import (
	"context"
	"sync"
	"time"

	"barberbook/internal/models"
)

type memoryEntry struct {
	list      []models.Appointment
	expiresAt time.Time
}

// MemoryViewCache is the in-process stand-in for RedisViewCache.
type MemoryViewCache struct {
	views sync.Map
	ttl   time.Duration
}

func NewMemoryViewCache(ttl time.Duration) *MemoryViewCache {
	return &MemoryViewCache{ttl: ttl}
}

func (r *MemoryViewCache) GetView(_ context.Context, key string) ([]models.Appointment, error) {
	val, ok := r.views.Load(key)
	if !ok {
		return nil, nil
	}
	entry := val.(memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		r.views.Delete(key)
		return nil, nil
	}
	out := make([]models.Appointment, len(entry.list))
	copy(out, entry.list)
	return out, nil
}

func (r *MemoryViewCache) SetView(_ context.Context, key string, appointments []models.Appointment) error {
	entry := memoryEntry{list: append([]models.Appointment{}, appointments...)}
	if r.ttl > 0 {
		entry.expiresAt = time.Now().Add(r.ttl)
	}
	r.views.Store(key, entry)
	return nil
}

func (r *MemoryViewCache) ClearView(_ context.Context, key string) error {
	r.views.Delete(key)
	return nil
}
