package domain

import (
	"context"

	"barberbook/internal/models"
	"barberbook/internal/timeofday"
)

// CreateRequest carries the references of a new booking.
type CreateRequest struct {
	ClientID  int64
	ShopID    int64
	BarberID  int64
	ServiceID int64
	Date      models.Date
	Time      timeofday.TimeOfDay
}

// RemoteAuthority is the backend that owns the canonical appointment records.
type RemoteAuthority interface {
	Cancel(ctx context.Context, id int64) (*models.Appointment, error)
	Reschedule(ctx context.Context, id int64, date models.Date, t timeofday.TimeOfDay) (*models.Appointment, error)
	Confirm(ctx context.Context, id int64) (*models.Appointment, error)
	Complete(ctx context.Context, id int64) (*models.Appointment, error)
	Create(ctx context.Context, req CreateRequest) (*models.Appointment, error)
	BookedSlots(ctx context.Context, shopID int64, date models.Date) ([]timeofday.TimeOfDay, error)
	ListForClient(ctx context.Context, clientID int64) ([]models.Appointment, error)
	ListForShop(ctx context.Context, shopID int64) ([]models.Appointment, error)
}

// ViewCache keeps the last swept view of an actor. A miss is (nil, nil).
type ViewCache interface {
	GetView(ctx context.Context, key string) ([]models.Appointment, error)
	SetView(ctx context.Context, key string, appointments []models.Appointment) error
	ClearView(ctx context.Context, key string) error
}

type Journal interface {
	AppendJournal(ctx context.Context, entry *models.JournalEntry) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
