package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/metrics"
	"github.com/blok13/clanportal/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	subscriptionBuffer = 16
)

// Feed message names.
const (
	EventSnapshot = "snapshot"
	EventDeleted  = "deleted"
)

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishEventFeed(eventID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to event feed channels and invokes handler for messages from other instances.
type RedisSubscriber interface {
	SubscribeEventFeed(eventID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Viewer identifies who a subscription delivers to; it decides which applications are visible.
type Viewer struct {
	UserID uuid.UUID
	Admin  bool
}

// Subscription is a live handle on one event's feed. Callers must Release it when the consuming
// view goes away; Release is idempotent.
type Subscription struct {
	// C receives feed messages. It is closed on Release.
	C <-chan WSMessage

	id      string
	eventID uuid.UUID
	viewer  Viewer
	send    chan WSMessage
	hub     *Hub
	once    sync.Once
}

// EventID returns the subscribed event.
func (s *Subscription) EventID() uuid.UUID { return s.eventID }

// Release unsubscribes and closes C.
func (s *Subscription) Release() {
	s.once.Do(func() { s.hub.release(s) })
}

// Hub maintains event_id -> set of subscriptions and fans feed snapshots out to them.
// Uses Redis pub/sub for horizontal scaling: local broadcast + publish to Redis.
type Hub struct {
	rooms    map[uuid.UUID]map[string]*Subscription
	subs     map[uuid.UUID]func() // cancel Redis subscription per event
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
	metrics  *metrics.Metrics
}

// NewHub creates a new feed hub. redisPub, redisSub and m may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Subscription),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
		metrics:  m,
	}
}

// Subscribe opens a subscription on eventID. Starts the Redis subscription for the event if first.
func (h *Hub) Subscribe(eventID uuid.UUID, viewer Viewer) *Subscription {
	send := make(chan WSMessage, subscriptionBuffer)
	s := &Subscription{C: send, id: uuid.NewString(), eventID: eventID, viewer: viewer, send: send, hub: h}

	h.mu.Lock()
	first := h.rooms[eventID] == nil
	if first {
		h.rooms[eventID] = make(map[string]*Subscription)
	}
	h.rooms[eventID][s.id] = s
	h.mu.Unlock()

	if first && h.redisSub != nil {
		h.listenRemote(eventID)
	}

	h.metrics.FeedSubscribed(1)
	h.logger.Debug("feed subscribed", zap.String("subscription_id", s.id), zap.String("event_id", eventID.String()))
	return s
}

// listenRemote subscribes to the event's Redis channel without holding the hub lock. The room is
// re-checked afterwards: a subscription that lost a race or outlived its room is cancelled.
func (h *Hub) listenRemote(eventID uuid.UUID) {
	cancel, err := h.redisSub.SubscribeEventFeed(eventID, func(event string, payload []byte) {
		h.deliverRemote(eventID, event, payload)
	})
	if err != nil {
		h.logger.Warn("redis feed subscribe failed", zap.Error(err), zap.String("event_id", eventID.String()))
		return
	}
	h.mu.Lock()
	_, open := h.rooms[eventID]
	_, active := h.subs[eventID]
	if open && !active {
		h.subs[eventID] = cancel
		cancel = nil
	}
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// release removes s and closes its channel. Cancels the Redis subscription when the last one leaves.
func (h *Hub) release(s *Subscription) {
	h.mu.Lock()
	if m, ok := h.rooms[s.eventID]; ok {
		delete(m, s.id)
		if len(m) == 0 {
			delete(h.rooms, s.eventID)
			if cancel, ok := h.subs[s.eventID]; ok {
				cancel()
				delete(h.subs, s.eventID)
			}
		}
	}
	close(s.send)
	h.mu.Unlock()

	h.metrics.FeedSubscribed(-1)
	h.logger.Debug("feed released", zap.String("subscription_id", s.id), zap.String("event_id", s.eventID.String()))
}

// Subscribers returns the number of local subscriptions on eventID.
func (h *Hub) Subscribers(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

// Broadcast delivers feed to local subscribers only, filtered per viewer.
func (h *Hub) Broadcast(eventID uuid.UUID, feed *models.EventFeed) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[eventID]
	if len(room) == 0 {
		return
	}
	for _, s := range room {
		data, err := json.Marshal(feed.ViewFor(s.viewer.UserID, s.viewer.Admin))
		if err != nil {
			h.logger.Error("marshal feed", zap.Error(err))
			return
		}
		s.offer(WSMessage{Event: EventSnapshot, Data: data})
	}
}

// BroadcastAndPublish sends to local subscribers and publishes to Redis for other instances.
func (h *Hub) BroadcastAndPublish(eventID uuid.UUID, feed *models.EventFeed) {
	h.Broadcast(eventID, feed)
	h.metrics.FeedBroadcast("local")
	if h.redis == nil {
		return
	}
	data, err := json.Marshal(feed)
	if err != nil {
		h.logger.Error("marshal feed", zap.Error(err))
		return
	}
	if err := h.redis.PublishEventFeed(eventID, EventSnapshot, data); err != nil {
		h.logger.Warn("publish feed", zap.Error(err), zap.String("event_id", eventID.String()))
	}
}

// EventDeleted tells local and remote subscribers that the event is gone.
func (h *Hub) EventDeleted(eventID uuid.UUID) {
	h.notifyDeleted(eventID)
	if h.redis != nil {
		if err := h.redis.PublishEventFeed(eventID, EventDeleted, nil); err != nil {
			h.logger.Warn("publish feed deletion", zap.Error(err), zap.String("event_id", eventID.String()))
		}
	}
}

func (h *Hub) notifyDeleted(eventID uuid.UUID) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.rooms[eventID] {
		s.offer(WSMessage{Event: EventDeleted})
	}
}

func (h *Hub) deliverRemote(eventID uuid.UUID, event string, payload []byte) {
	switch event {
	case EventSnapshot:
		var feed models.EventFeed
		if err := json.Unmarshal(payload, &feed); err != nil {
			h.logger.Warn("decode remote feed", zap.Error(err))
			return
		}
		h.Broadcast(eventID, &feed)
		h.metrics.FeedBroadcast("redis")
	case EventDeleted:
		h.notifyDeleted(eventID)
	}
}

// sendTo delivers a snapshot to one subscription, e.g. the initial state after Subscribe.
func (h *Hub) sendTo(s *Subscription, feed *models.EventFeed) {
	data, err := json.Marshal(feed.ViewFor(s.viewer.UserID, s.viewer.Admin))
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.rooms[s.eventID][s.id]; ok {
		s.offer(WSMessage{Event: EventSnapshot, Data: data})
	}
}

// offer must be called with the hub lock held, which keeps it ordered before close in release.
func (s *Subscription) offer(msg WSMessage) {
	select {
	case s.send <- msg:
	default:
		// buffer full, skip; the next snapshot supersedes this one
	}
}
