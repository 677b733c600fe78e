package events

import (
	"sort"
	"time"

	"github.com/blok13/clanportal/internal/models"
)

// Status is the time-derived phase of an event.
type Status string

const (
	StatusNoDate   Status = "no-date"
	StatusUpcoming Status = "upcoming"
	StatusRunning  Status = "running"
	StatusPast     Status = "past"
)

// DefaultRunningGrace is how long an event without an end time stays running after it starts.
const DefaultRunningGrace = 2 * time.Hour

// Classify derives the status of an event window at now.
func Classify(now time.Time, start, end *time.Time, grace time.Duration) Status {
	if start == nil {
		return StatusNoDate
	}
	if now.Before(*start) {
		return StatusUpcoming
	}
	if end != nil {
		if now.Before(*end) {
			return StatusRunning
		}
		return StatusPast
	}
	if now.Before(start.Add(grace)) {
		return StatusRunning
	}
	return StatusPast
}

func statusRank(s Status) int {
	switch s {
	case StatusRunning:
		return 0
	case StatusUpcoming:
		return 1
	case StatusPast:
		return 2
	default:
		return 3
	}
}

// SortForDisplay orders events running, upcoming, past, then undated.
// Within a group events sort by start ascending, then by creation time descending.
func SortForDisplay(list []models.Event, now time.Time, grace time.Duration) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if d := statusRank(Classify(now, a.StartsAt, a.EndsAt, grace)) - statusRank(Classify(now, b.StartsAt, b.EndsAt, grace)); d != 0 {
			return d < 0
		}
		switch {
		case a.StartsAt != nil && b.StartsAt != nil:
			if !a.StartsAt.Equal(*b.StartsAt) {
				return a.StartsAt.Before(*b.StartsAt)
			}
		case a.StartsAt != nil:
			return true
		case b.StartsAt != nil:
			return false
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
