package models

import (
	"time"

	"github.com/google/uuid"
)

// ApplicationStatus is the lifecycle state of an event application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
	ApplicationCanceled ApplicationStatus = "canceled"
)

// Valid reports whether s is one of the four known statuses.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationPending, ApplicationApproved, ApplicationRejected, ApplicationCanceled:
		return true
	}
	return false
}

// applicationTransitions lists the admin-driven moves allowed when strict transitions are on.
// Setting the current status again is always allowed.
var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationPending:  {ApplicationApproved, ApplicationRejected, ApplicationCanceled},
	ApplicationApproved: {ApplicationCanceled, ApplicationRejected},
	ApplicationRejected: {ApplicationPending},
	ApplicationCanceled: {ApplicationPending},
}

// CanTransition reports whether an admin may move an application from -> to.
func CanTransition(from, to ApplicationStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, s := range applicationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Application is a user's request to join an event. One per (event, user).
type Application struct {
	EventID   uuid.UUID         `json:"event_id"`
	UserID    uuid.UUID         `json:"user_id"`
	Profile   Snapshot          `json:"profile"`
	Status    ApplicationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
