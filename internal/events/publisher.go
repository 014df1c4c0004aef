package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"trainslot/internal/logger"
	"trainslot/internal/metrics"
)

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// RedisPublisher pushes events onto a redis list for the notification
// dispatcher to drain.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(addr string) *RedisPublisher {
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
	}
}

// NewRedisPublisherWithClient exists for tests.
func NewRedisPublisherWithClient(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		metrics.RecordEventPublished(evt.Type, "error")
		return err
	}

	if err := p.client.LPush(ctx, QueueKey, data).Err(); err != nil {
		metrics.RecordEventPublished(evt.Type, "error")
		logger.Error("Failed to publish event", "type", evt.Type, "error", err)
		return err
	}

	metrics.RecordEventPublished(evt.Type, "ok")
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
