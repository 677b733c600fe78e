package models

import (
	"time"

	"github.com/google/uuid"
)

// Capacity bounds for an event.
const (
	MinCapacity = 1
	MaxCapacity = 500
)

// Event is a scheduled clan activity with a capacity-bounded signup process.
type Event struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	StartsAt          *time.Time `json:"starts_at,omitempty"`
	EndsAt            *time.Time `json:"ends_at,omitempty"`
	Link              string     `json:"link,omitempty"`
	Capacity          int        `json:"capacity"`
	AutoApprove       bool       `json:"auto_approve"`
	IsClosed          bool       `json:"is_closed"`
	Archived          bool       `json:"archived"`
	Requirements      StatBlock  `json:"requirements"`
	ParticipantsCount int        `json:"participants_count"`
	CreatedBy         uuid.UUID  `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SeatsLeft returns the number of open seats according to the cached counter.
func (e *Event) SeatsLeft() int {
	if left := e.Capacity - e.ParticipantsCount; left > 0 {
		return left
	}
	return 0
}

// IsFull reports whether the cached counter has reached capacity.
func (e *Event) IsFull() bool {
	return e.ParticipantsCount >= e.Capacity
}

// EventPatch is a partial update; nil fields are left unchanged.
// ClearEndsAt removes the end time (a nil EndsAt alone means "unchanged").
type EventPatch struct {
	Title         *string
	Description   *string
	StartsAt      *time.Time
	EndsAt        *time.Time
	ClearStartsAt bool
	ClearEndsAt   bool
	Link          *string
	Capacity      *int
	AutoApprove   *bool
	IsClosed      *bool
	Archived      *bool
	Requirements  *StatBlock
}

// Apply returns a copy of e with the patch applied.
func (p EventPatch) Apply(e Event) Event {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.ClearStartsAt {
		e.StartsAt = nil
	} else if p.StartsAt != nil {
		t := *p.StartsAt
		e.StartsAt = &t
	}
	if p.ClearEndsAt {
		e.EndsAt = nil
	} else if p.EndsAt != nil {
		t := *p.EndsAt
		e.EndsAt = &t
	}
	if p.Link != nil {
		e.Link = *p.Link
	}
	if p.Capacity != nil {
		e.Capacity = *p.Capacity
	}
	if p.AutoApprove != nil {
		e.AutoApprove = *p.AutoApprove
	}
	if p.IsClosed != nil {
		e.IsClosed = *p.IsClosed
	}
	if p.Archived != nil {
		e.Archived = *p.Archived
	}
	if p.Requirements != nil {
		e.Requirements = *p.Requirements
	}
	return e
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.StartsAt == nil && p.EndsAt == nil &&
		!p.ClearStartsAt && !p.ClearEndsAt && p.Link == nil && p.Capacity == nil &&
		p.AutoApprove == nil && p.IsClosed == nil && p.Archived == nil && p.Requirements == nil
}
