package feed_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blok13/clanportal/internal/feed"
	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/internal/roster"
	"github.com/blok13/clanportal/internal/roster/memstore"
	"github.com/blok13/clanportal/internal/waitlist"
)

type captured struct {
	mu      sync.Mutex
	feeds   []*models.EventFeed
	deleted []uuid.UUID
}

func (c *captured) BroadcastAndPublish(_ uuid.UUID, f *models.EventFeed) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeds = append(c.feeds, f)
}

func (c *captured) EventDeleted(eventID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, eventID)
}

func (c *captured) last() *models.EventFeed {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.feeds) == 0 {
		return nil
	}
	return c.feeds[len(c.feeds)-1]
}

func TestCoordinatorChangesReachTheFeed(t *testing.T) {
	store := memstore.New()
	out := &captured{}
	pub := feed.NewPublisher(feed.NewLoader(store, store, store, feed.Limits{}), out, nil)
	coord := roster.NewCoordinator(store, store, pub, nil, nil)
	queue := waitlist.NewQueue(store, store, pub, nil)
	ctx := context.Background()

	ev := store.PutEvent(models.Event{Title: "Arena", Capacity: 1, AutoApprove: true, CreatedAt: time.Now()})
	a, b := uuid.New(), uuid.New()
	store.PutProfile(models.Profile{UID: a, DisplayName: "A", Role: models.RoleMember})
	store.PutProfile(models.Profile{UID: b, DisplayName: "B", Role: models.RoleMember})

	_, err := coord.JoinEventAuto(ctx, ev.ID, a)
	require.NoError(t, err)
	f := out.last()
	require.NotNil(t, f)
	assert.Equal(t, 1, f.Event.ParticipantsCount)
	require.Len(t, f.Participants, 1)
	assert.Equal(t, "A", f.Participants[0].Profile.DisplayName)
	require.Len(t, f.Applications, 1)
	assert.Equal(t, models.ApplicationApproved, f.Applications[0].Status)

	_, _, err = queue.Join(ctx, ev.ID, b)
	require.NoError(t, err)
	f = out.last()
	require.Len(t, f.Waitlist, 1)
	assert.Equal(t, b, f.Waitlist[0].UserID)
}

func TestRefreshOfMissingEventReportsDeletion(t *testing.T) {
	store := memstore.New()
	out := &captured{}
	pub := feed.NewPublisher(feed.NewLoader(store, store, store, feed.Limits{}), out, nil)

	gone := uuid.New()
	pub.Refresh(context.Background(), gone)
	assert.Equal(t, []uuid.UUID{gone}, out.deleted)
	assert.Nil(t, out.last())
}

func TestRefreshSurvivesCanceledRequest(t *testing.T) {
	store := memstore.New()
	out := &captured{}
	pub := feed.NewPublisher(feed.NewLoader(store, store, store, feed.Limits{}), out, nil)
	ev := store.PutEvent(models.Event{Title: "Raid", Capacity: 2, CreatedAt: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.Refresh(ctx, ev.ID)
	f := out.last()
	require.NotNil(t, f)
	assert.Empty(t, f.Participants)
	assert.NotNil(t, f.Applications)
}
