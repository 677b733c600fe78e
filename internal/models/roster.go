package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a user holding a confirmed seat. Its existence is the seat.
type Participant struct {
	EventID  uuid.UUID `json:"event_id"`
	UserID   uuid.UUID `json:"user_id"`
	Profile  Snapshot  `json:"profile"`
	JoinedAt time.Time `json:"joined_at"`
}

// WaitlistStatusWaiting is the only status a waitlist entry carries.
const WaitlistStatusWaiting = "waiting"

// WaitlistEntry is a FIFO-queued request for a seat while the event is full.
type WaitlistEntry struct {
	EventID   uuid.UUID `json:"event_id"`
	UserID    uuid.UUID `json:"user_id"`
	Profile   Snapshot  `json:"profile"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// MyEvent is one row of a user's "my events" index.
type MyEvent struct {
	EventID  uuid.UUID  `json:"event_id"`
	Title    string     `json:"title"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	AddedAt  time.Time  `json:"added_at"`
}

// RosterExport tracks an asynchronous roster export to object storage.
type RosterExport struct {
	ID          uuid.UUID  `json:"id"`
	EventID     uuid.UUID  `json:"event_id"`
	RequestedBy uuid.UUID  `json:"requested_by"`
	Status      string     `json:"status"` // pending, completed, failed
	ObjectKey   string     `json:"object_key,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Export statuses.
const (
	ExportPending   = "pending"
	ExportCompleted = "completed"
	ExportFailed    = "failed"
)
