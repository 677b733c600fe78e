package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blok13/clanportal/internal/models"
)

func ptr(t time.Time) *time.Time { return &t }

func TestClassify(t *testing.T) {
	now := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start *time.Time
		end   *time.Time
		want  Status
	}{
		{"no start", nil, nil, StatusNoDate},
		{"no start with end", nil, ptr(now.Add(time.Hour)), StatusNoDate},
		{"future start", ptr(now.Add(time.Minute)), nil, StatusUpcoming},
		{"inside explicit window", ptr(now.Add(-time.Hour)), ptr(now.Add(time.Hour)), StatusRunning},
		{"explicit window over", ptr(now.Add(-3 * time.Hour)), ptr(now.Add(-time.Hour)), StatusPast},
		{"end exactly now", ptr(now.Add(-time.Hour)), ptr(now), StatusPast},
		{"open ended within grace", ptr(now.Add(-119 * time.Minute)), nil, StatusRunning},
		{"open ended grace elapsed", ptr(now.Add(-2 * time.Hour)), nil, StatusPast},
		{"start exactly now", ptr(now), nil, StatusRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(now, tt.start, tt.end, DefaultRunningGrace))
		})
	}
}

func TestSortForDisplay(t *testing.T) {
	now := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	created := now.Add(-48 * time.Hour)

	mk := func(title string, start *time.Time, createdAt time.Time) models.Event {
		return models.Event{ID: uuid.New(), Title: title, StartsAt: start, CreatedAt: createdAt, Capacity: 10}
	}
	list := []models.Event{
		mk("undated-old", nil, created),
		mk("past", ptr(now.Add(-24*time.Hour)), created),
		mk("upcoming-later", ptr(now.Add(48*time.Hour)), created),
		mk("running", ptr(now.Add(-30*time.Minute)), created),
		mk("upcoming-soon", ptr(now.Add(time.Hour)), created),
		mk("undated-new", nil, created.Add(time.Hour)),
	}

	SortForDisplay(list, now, DefaultRunningGrace)

	titles := make([]string, 0, len(list))
	for _, e := range list {
		titles = append(titles, e.Title)
	}
	require.Len(t, titles, 6)
	assert.Equal(t, []string{"running", "upcoming-soon", "upcoming-later", "past", "undated-new", "undated-old"}, titles)
}
