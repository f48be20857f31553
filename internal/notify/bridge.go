package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// eventsChannel carries task events from worker processes to the API server.
const eventsChannel = "events:tasks"

// Publisher sends task events onto the Redis event channel.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(redisURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &Publisher{client: redis.NewClient(opts)}, nil
}

func (p *Publisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

// Bridge subscribes to the Redis event channel and replays each event into
// the hub. Per-task ordering holds because each task has one publishing
// worker and subscription delivery is ordered.
type Bridge struct {
	client *redis.Client
	hub    *Hub
}

func NewBridge(redisURL string, hub *Hub) (*Bridge, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &Bridge{client: redis.NewClient(opts), hub: hub}, nil
}

// Run consumes events until the context is cancelled. Malformed events are
// logged and skipped.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, eventsChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Warn("dropping malformed task event", "error", err)
				continue
			}
			b.hub.Broadcast(event)
		}
	}
}

func (b *Bridge) Close() error {
	return b.client.Close()
}
