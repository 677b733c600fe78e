package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blok13/clanportal/internal/models"
)

type fakeRedis struct {
	mu        sync.Mutex
	published []string
	handlers  map[uuid.UUID]func(string, []byte)
	canceled  map[uuid.UUID]int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{handlers: map[uuid.UUID]func(string, []byte){}, canceled: map[uuid.UUID]int{}}
}

func (f *fakeRedis) PublishEventFeed(eventID uuid.UUID, event string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
	return nil
}

func (f *fakeRedis) SubscribeEventFeed(eventID uuid.UUID, handler func(string, []byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[eventID] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.canceled[eventID]++
	}, nil
}

func sampleFeed(eventID uuid.UUID, applicants ...uuid.UUID) *models.EventFeed {
	f := &models.EventFeed{Event: models.Event{ID: eventID, Title: "Raid", Capacity: 3}}
	for _, uid := range applicants {
		f.Applications = append(f.Applications, models.Application{EventID: eventID, UserID: uid, Status: models.ApplicationPending})
	}
	return f
}

func decode(t *testing.T, msg WSMessage) models.EventFeed {
	t.Helper()
	require.Equal(t, EventSnapshot, msg.Event)
	var f models.EventFeed
	require.NoError(t, json.Unmarshal(msg.Data, &f))
	return f
}

func TestSubscriptionLifecycle(t *testing.T) {
	r := newFakeRedis()
	hub := NewHub(nil, r, r, nil)
	eventID := uuid.New()

	a := hub.Subscribe(eventID, Viewer{UserID: uuid.New()})
	b := hub.Subscribe(eventID, Viewer{UserID: uuid.New()})
	assert.Equal(t, 2, hub.Subscribers(eventID))
	assert.Len(t, r.handlers, 1, "one Redis subscription per event")

	a.Release()
	a.Release()
	assert.Equal(t, 1, hub.Subscribers(eventID))
	assert.Zero(t, r.canceled[eventID])
	_, open := <-a.C
	assert.False(t, open)

	b.Release()
	assert.Zero(t, hub.Subscribers(eventID))
	assert.Equal(t, 1, r.canceled[eventID])
}

func TestBroadcastFiltersApplicationsPerViewer(t *testing.T) {
	hub := NewHub(nil, nil, nil, nil)
	eventID := uuid.New()
	me, other := uuid.New(), uuid.New()

	member := hub.Subscribe(eventID, Viewer{UserID: me})
	defer member.Release()
	admin := hub.Subscribe(eventID, Viewer{UserID: uuid.New(), Admin: true})
	defer admin.Release()
	elsewhere := hub.Subscribe(uuid.New(), Viewer{UserID: me})
	defer elsewhere.Release()

	hub.BroadcastAndPublish(eventID, sampleFeed(eventID, me, other))

	got := decode(t, <-member.C)
	require.Len(t, got.Applications, 1)
	assert.Equal(t, me, got.Applications[0].UserID)

	got = decode(t, <-admin.C)
	assert.Len(t, got.Applications, 2)

	assert.Empty(t, elsewhere.C)
}

func TestRemoteMessagesAreDeliveredLocally(t *testing.T) {
	r := newFakeRedis()
	hub := NewHub(nil, r, r, nil)
	eventID := uuid.New()
	sub := hub.Subscribe(eventID, Viewer{UserID: uuid.New(), Admin: true})
	defer sub.Release()

	payload, err := json.Marshal(sampleFeed(eventID, uuid.New()))
	require.NoError(t, err)
	r.handlers[eventID](EventSnapshot, payload)
	got := decode(t, <-sub.C)
	assert.Equal(t, "Raid", got.Event.Title)

	r.handlers[eventID](EventDeleted, nil)
	msg := <-sub.C
	assert.Equal(t, EventDeleted, msg.Event)
}

func TestEventDeletedPublishes(t *testing.T) {
	r := newFakeRedis()
	hub := NewHub(nil, r, r, nil)
	eventID := uuid.New()
	sub := hub.Subscribe(eventID, Viewer{UserID: uuid.New()})
	defer sub.Release()

	hub.EventDeleted(eventID)
	assert.Equal(t, EventDeleted, (<-sub.C).Event)
	assert.Equal(t, []string{EventDeleted}, r.published)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(nil, nil, nil, nil)
	eventID := uuid.New()
	sub := hub.Subscribe(eventID, Viewer{UserID: uuid.New()})
	defer sub.Release()

	for i := 0; i < subscriptionBuffer*3; i++ {
		hub.Broadcast(eventID, sampleFeed(eventID))
	}
	assert.Len(t, sub.C, subscriptionBuffer)
}

type slowRedis struct {
	*fakeRedis
	slow    uuid.UUID
	entered chan struct{}
	proceed chan struct{}
}

func (r *slowRedis) SubscribeEventFeed(eventID uuid.UUID, handler func(string, []byte)) (func(), error) {
	if eventID == r.slow {
		close(r.entered)
		<-r.proceed
	}
	return r.fakeRedis.SubscribeEventFeed(eventID, handler)
}

func TestSlowRedisSubscribeDoesNotBlockBroadcast(t *testing.T) {
	slowEvent, otherEvent := uuid.New(), uuid.New()
	r := &slowRedis{fakeRedis: newFakeRedis(), slow: slowEvent, entered: make(chan struct{}), proceed: make(chan struct{})}
	hub := NewHub(nil, r, r, nil)

	other := hub.Subscribe(otherEvent, Viewer{Admin: true})
	defer other.Release()

	subscribed := make(chan *Subscription, 1)
	go func() { subscribed <- hub.Subscribe(slowEvent, Viewer{Admin: true}) }()
	<-r.entered

	done := make(chan struct{})
	go func() {
		hub.Broadcast(otherEvent, sampleFeed(otherEvent))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast waited on a pending Redis subscribe")
	}
	decode(t, <-other.C)
	assert.Equal(t, 1, hub.Subscribers(slowEvent))

	close(r.proceed)
	s := <-subscribed
	s.Release()
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, 1, r.canceled[slowEvent])
}
