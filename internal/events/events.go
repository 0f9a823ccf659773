package events

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	EventAppointmentCreated     = "appointment_created"
	EventAppointmentConfirmed   = "appointment_confirmed"
	EventAppointmentRescheduled = "appointment_rescheduled"
	EventAppointmentCancelled   = "appointment_cancelled"
	EventAppointmentExpired     = "appointment_expired"
	EventAppointmentCompleted   = "appointment_completed"
)

// AllTypes lists every appointment event type.
var AllTypes = []string{
	EventAppointmentCreated,
	EventAppointmentConfirmed,
	EventAppointmentRescheduled,
	EventAppointmentCancelled,
	EventAppointmentExpired,
	EventAppointmentCompleted,
}

// AppointmentEventPayload is the appointment snapshot sent to subscribers.
type AppointmentEventPayload struct {
	AppointmentID int64  `json:"appointment_id"`
	ClientID      int64  `json:"client_id"`
	ShopID        int64  `json:"shop_id"`
	BarberID      int64  `json:"barber_id,omitempty"`
	Date          string `json:"date"`
	Time          string `json:"time,omitempty"`
	FromStatus    string `json:"from_status,omitempty"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Source        string `json:"source"`
	ActorKind     string `json:"actor_kind,omitempty"`
	ActorID       int64  `json:"actor_id,omitempty"`
}

type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	all         []EventHandler
	mu          sync.RWMutex
	seq         atomic.Int64
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish runs the matching handlers synchronously and joins their errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers[event.Type])+len(b.all))
	handlers = append(handlers, b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	if event.ID == 0 {
		event.ID = b.seq.Add(1)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	ev, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&ev)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// DecodeAppointment unmarshals an appointment event payload.
func DecodeAppointment(event *Event) (AppointmentEventPayload, error) {
	var p AppointmentEventPayload
	err := json.Unmarshal(event.Payload, &p)
	return p, err
}
