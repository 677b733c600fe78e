package models

import (
	"time"

	"github.com/google/uuid"
)

// EventFeed is the live view of one event pushed to subscribers whenever its roster changes.
type EventFeed struct {
	Event        Event           `json:"event"`
	Participants []Participant   `json:"participants"`
	Waitlist     []WaitlistEntry `json:"waitlist"`
	Applications []Application   `json:"applications"`
	At           time.Time       `json:"at"`
}

// ViewFor returns the feed as seen by viewer. Admins see every application; everyone else
// sees only their own.
func (f *EventFeed) ViewFor(viewer uuid.UUID, admin bool) *EventFeed {
	if admin {
		return f
	}
	out := *f
	out.Applications = []Application{}
	for _, a := range f.Applications {
		if a.UserID == viewer {
			out.Applications = append(out.Applications, a)
		}
	}
	return &out
}
