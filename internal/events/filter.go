package events

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blok13/clanportal/internal/models"
)

// Period narrows the list by time status.
type Period string

const (
	PeriodAll  Period = "all"
	PeriodSoon Period = "soon" // upcoming or running
	PeriodPast Period = "past"
)

// Filter is the list page's search state.
type Filter struct {
	Query        string
	Period       Period
	HideArchived bool
	AutoOnly     bool
	FreeOnly     bool
	MineOnly     bool
	// Mine holds the events the viewer has an application, seat or waitlist entry for.
	Mine map[uuid.UUID]bool
}

// DefaultFilter hides archived events and shows every period.
func DefaultFilter() Filter {
	return Filter{Period: PeriodAll, HideArchived: true}
}

// Match reports whether e passes the filter at now.
func (f Filter) Match(e *models.Event, now time.Time, grace time.Duration) bool {
	if f.HideArchived && e.Archived {
		return false
	}
	if f.AutoOnly && !e.AutoApprove {
		return false
	}
	if f.FreeOnly && e.SeatsLeft() == 0 {
		return false
	}
	if f.MineOnly && !f.Mine[e.ID] {
		return false
	}
	switch f.Period {
	case PeriodSoon:
		if st := Classify(now, e.StartsAt, e.EndsAt, grace); st != StatusUpcoming && st != StatusRunning {
			return false
		}
	case PeriodPast:
		if Classify(now, e.StartsAt, e.EndsAt, grace) != StatusPast {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		text := strings.ToLower(e.Title + "\n" + e.Description)
		if !strings.Contains(text, q) {
			return false
		}
	}
	return true
}

// Apply returns the events matching the filter, preserving order.
func (f Filter) Apply(list []models.Event, now time.Time, grace time.Duration) []models.Event {
	out := make([]models.Event, 0, len(list))
	for i := range list {
		if f.Match(&list[i], now, grace) {
			out = append(out, list[i])
		}
	}
	return out
}
