package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/blok13/clanportal/internal/models"
)

func TestFilterApply(t *testing.T) {
	now := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

	raid := models.Event{ID: uuid.New(), Title: "Night raid", Description: "Bring poison resist", Capacity: 5,
		ParticipantsCount: 5, StartsAt: ptr(now.Add(time.Hour))}
	arena := models.Event{ID: uuid.New(), Title: "Arena", Capacity: 10, ParticipantsCount: 2, AutoApprove: true,
		StartsAt: ptr(now.Add(-10 * time.Minute))}
	old := models.Event{ID: uuid.New(), Title: "Old siege", Capacity: 10, StartsAt: ptr(now.Add(-72 * time.Hour))}
	archived := models.Event{ID: uuid.New(), Title: "Archived raid", Capacity: 10, Archived: true}
	all := []models.Event{raid, arena, old, archived}

	titles := func(list []models.Event) []string {
		out := []string{}
		for _, e := range list {
			out = append(out, e.Title)
		}
		return out
	}

	t.Run("default hides archived", func(t *testing.T) {
		got := DefaultFilter().Apply(all, now, DefaultRunningGrace)
		assert.Equal(t, []string{"Night raid", "Arena", "Old siege"}, titles(got))
	})

	t.Run("text query is case insensitive over title and description", func(t *testing.T) {
		f := DefaultFilter()
		f.Query = "  POISON "
		assert.Equal(t, []string{"Night raid"}, titles(f.Apply(all, now, DefaultRunningGrace)))
	})

	t.Run("soon includes running", func(t *testing.T) {
		f := DefaultFilter()
		f.Period = PeriodSoon
		assert.Equal(t, []string{"Night raid", "Arena"}, titles(f.Apply(all, now, DefaultRunningGrace)))
	})

	t.Run("past", func(t *testing.T) {
		f := DefaultFilter()
		f.Period = PeriodPast
		assert.Equal(t, []string{"Old siege"}, titles(f.Apply(all, now, DefaultRunningGrace)))
	})

	t.Run("free and auto", func(t *testing.T) {
		f := DefaultFilter()
		f.FreeOnly = true
		assert.Equal(t, []string{"Arena", "Old siege"}, titles(f.Apply(all, now, DefaultRunningGrace)))
		f.AutoOnly = true
		assert.Equal(t, []string{"Arena"}, titles(f.Apply(all, now, DefaultRunningGrace)))
	})

	t.Run("mine", func(t *testing.T) {
		f := DefaultFilter()
		f.HideArchived = false
		f.MineOnly = true
		f.Mine = map[uuid.UUID]bool{archived.ID: true, old.ID: true}
		assert.Equal(t, []string{"Old siege", "Archived raid"}, titles(f.Apply(all, now, DefaultRunningGrace)))
	})
}
