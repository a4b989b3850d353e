package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher mirrors hub updates onto Redis pub/sub channels so other
// service instances and dashboards can consume them.
type RedisPublisher struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisPublisher connects to the given Redis URL and verifies the
// connection.
func NewRedisPublisher(ctx context.Context, url string, logger *log.Logger) (*RedisPublisher, error) {
	if logger == nil {
		logger = log.Default()
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisPublisher{client: client, logger: logger}, nil
}

// Publish sends data to the metric:<channel> Redis channel.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := p.client.Publish(ctx, "metric:"+channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
