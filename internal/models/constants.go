package models

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an appointment, always lower-case.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ReasonExpired marks an appointment cancelled because its slot passed.
const ReasonExpired = "Expired"

// ParseStatus accepts any letter case, as the authority sends PENDING/CONFIRMED.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusScheduled, StatusCompleted, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown appointment status %q", s)
	}
}

// IsActive reports pending, confirmed and scheduled.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusScheduled
}

// IsTerminal reports completed and cancelled.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

const (
	// DefaultOpenTime начало сетки слотов, если у барбершопа нет своей
	DefaultOpenTime = "08:00"

	// DefaultCloseTime последний слот сетки (включительно)
	DefaultCloseTime = "19:00"

	// DefaultSlotStepMinutes шаг сетки слотов
	DefaultSlotStepMinutes = 30

	// DefaultDurationMinutes длительность услуги, если бэкенд её не прислал
	DefaultDurationMinutes = 30

	// DefaultViewTTL время жизни снимка списка записей в Redis (секунды)
	DefaultViewTTL = 24 * 60 * 60

	// DefaultSweepConcurrency параллельные запросы отмены при проверке просрочки
	DefaultSweepConcurrency = 8

	// ReconcileQueueSize размер in-memory очереди воркера сверки
	ReconcileQueueSize = 128
)
