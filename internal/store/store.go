// Package store keeps one actor's appointments in memory.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"barberbook/internal/models"
)

type Kind string

const (
	KindClient Kind = "client"
	KindShop   Kind = "shop"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindClient, KindShop:
		return k, nil
	case "barbershop":
		return KindShop, nil
	default:
		return "", fmt.Errorf("unknown actor kind %q", s)
	}
}

// Actor is the client or shop whose appointments are viewed.
type Actor struct {
	ID   int64
	Kind Kind
}

// Key identifies the actor in caches and logs, e.g. "client:5".
func (a Actor) Key() string {
	return string(a.Kind) + ":" + strconv.FormatInt(a.ID, 10)
}

func (a Actor) String() string {
	return a.Key()
}

// Lister fetches the canonical appointment list of an actor.
type Lister interface {
	ListForClient(ctx context.Context, clientID int64) ([]models.Appointment, error)
	ListForShop(ctx context.Context, shopID int64) ([]models.Appointment, error)
}

// Store is safe for concurrent use. Writes are last-writer-wins by id.
type Store struct {
	actor Actor

	mu       sync.RWMutex
	byID     map[int64]models.Appointment
	order    []int64
	loadedAt time.Time
}

func New(actor Actor) *Store {
	return &Store{actor: actor, byID: make(map[int64]models.Appointment)}
}

func (s *Store) Actor() Actor {
	return s.actor
}

// Load fetches the actor's records and replaces the store content.
// The store is left untouched when the fetch fails.
func (s *Store) Load(ctx context.Context, lister Lister) ([]models.Appointment, error) {
	var (
		list []models.Appointment
		err  error
	)
	switch s.actor.Kind {
	case KindClient:
		list, err = lister.ListForClient(ctx, s.actor.ID)
	case KindShop:
		list, err = lister.ListForShop(ctx, s.actor.ID)
	default:
		return nil, fmt.Errorf("load %s: unknown actor kind", s.actor)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.actor, err)
	}

	s.Reset(list)
	return s.All(), nil
}

// Reset replaces the whole content. Later duplicates of an id win.
func (s *Store) Reset(list []models.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[int64]models.Appointment, len(list))
	s.order = s.order[:0]
	for _, a := range list {
		if _, seen := s.byID[a.ID]; !seen {
			s.order = append(s.order, a.ID)
		}
		s.byID[a.ID] = a
	}
	s.loadedAt = time.Now()
}

// Replace stores updated under id, appending it when the id is new.
func (s *Store) Replace(id int64, updated models.Appointment) error {
	if updated.ID != id {
		return fmt.Errorf("replace appointment %d: record carries id %d", id, updated.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		s.order = append(s.order, id)
	}
	s.byID[id] = updated
	return nil
}

func (s *Store) Get(id int64) (models.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	return a, ok
}

// All returns a copy in load order.
func (s *Store) All() []models.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Appointment, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *Store) Filter(f Filter, now time.Time) []models.Appointment {
	return Apply(s.All(), f, now)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// LoadedAt is zero until the first Reset.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}
