package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "event-feed:"
	eventTTL      = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance broadcast.
type redisPayload struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	Origin string          `json:"origin"`
	At     int64           `json:"at"`
}

// RedisPubSub implements RedisPublisher and RedisSubscriber using Redis pub/sub.
// Messages published by this instance are not handed back to it.
type RedisPubSub struct {
	client   *redis.Client
	instance string
	logger   *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for event feeds.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, instance: uuid.NewString(), logger: logger}
}

// Channel returns the Redis channel carrying eventID's feed.
func Channel(eventID uuid.UUID) string {
	return channelPrefix + eventID.String()
}

// PublishEventFeed publishes a feed message to the event's Redis channel.
func (r *RedisPubSub) PublishEventFeed(eventID uuid.UUID, event string, payload []byte) error {
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, Origin: r.instance, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTTL)
	defer cancel()
	return r.client.Publish(ctx, Channel(eventID), body).Err()
}

// SubscribeEventFeed subscribes to an event's Redis channel and calls handler for each message
// from another instance. Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeEventFeed(eventID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, Channel(eventID))
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Debug("skip malformed feed message", zap.Error(err))
					continue
				}
				if p.Origin == r.instance {
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return cancelCtx, nil
}
