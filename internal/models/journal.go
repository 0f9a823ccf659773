package models

import "time"

const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// JournalEntry records one applied lifecycle transition.
type JournalEntry struct {
	ID            int64     `json:"id"`
	AppointmentID int64     `json:"appointment_id"`
	ActorKind     string    `json:"actor_kind"`
	ActorID       int64     `json:"actor_id"`
	Event         string    `json:"event"`
	FromStatus    Status    `json:"from_status"`
	ToStatus      Status    `json:"to_status"`
	Source        string    `json:"source"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
