package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user role in the clan portal.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleUser   Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember || r == RoleUser
}

// Profile is the per-user record the event workflow reads for display fields and stats.
type Profile struct {
	UID         uuid.UUID `json:"uid"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Role        Role      `json:"role"`
	Stats       StatBlock `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultDisplayName is used when a profile has no display name set.
const DefaultDisplayName = "Player"

// Snapshot copies the profile fields that get denormalized onto event records.
func (p *Profile) Snapshot(now time.Time) Snapshot {
	name := p.DisplayName
	if name == "" {
		name = DefaultDisplayName
	}
	return Snapshot{
		Version:     SnapshotVersion,
		DisplayName: name,
		PhotoURL:    p.PhotoURL,
		Stats:       p.Stats,
		TakenAt:     now.UTC(),
	}
}
