package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const eventsChannel = "bookline:availability-events"

// RedisBridge mirrors local events onto a Redis pub/sub channel and re-injects
// events published by other instances, so SSE subscribers see changes no
// matter which instance committed them. Delivery stays at-most-once; a Redis
// outage degrades to single-instance fan-out.
type RedisBridge struct {
	client     *redis.Client
	hub        *Broadcaster
	log        *slog.Logger
	instanceID string
	cancel     context.CancelFunc
}

type bridgeEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

func NewRedisBridge(client *redis.Client, hub *Broadcaster, log *slog.Logger) *RedisBridge {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{
		client:     client,
		hub:        hub,
		log:        log.With(slog.String("component", "broadcast.redis")),
		instanceID: uuid.NewString(),
	}
}

// Start begins relaying remote events into the hub until ctx is done or Stop
// is called.
func (b *RedisBridge) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	sub := b.client.Subscribe(ctx, eventsChannel)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env bridgeEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.Warn("dropping malformed bridge event", slog.Any("err", err))
					continue
				}
				if env.Origin == b.instanceID {
					continue
				}
				b.hub.Publish(env.Event)
			}
		}
	}()
}

func (b *RedisBridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Publish sends the event to the local hub and mirrors it to Redis.
func (b *RedisBridge) Publish(event Event) {
	b.hub.Publish(event)

	payload, err := json.Marshal(bridgeEnvelope{Origin: b.instanceID, Event: event})
	if err != nil {
		b.log.Warn("bridge event marshal failed", slog.Any("err", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, eventsChannel, payload).Err(); err != nil {
		b.log.Warn("bridge publish failed", slog.Any("err", err))
	}
}
