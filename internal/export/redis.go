package export

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisConfig represents Redis Streams export configuration
type redisConfig struct {
	URL      string // Redis URL (e.g., redis://localhost:6379)
	Password string
	DB       int
	Stream   string // stream name (default: "shardpulse")
}

// RedisExporter appends snapshots to a Redis stream
type RedisExporter struct {
	client *redis.Client
	stream string
}

// newRedisExporter connects to Redis and creates an exporter
func newRedisExporter(cfg redisConfig) (*RedisExporter, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		// Fallback to simple options
		opts = &redis.Options{
			Addr:     cfg.URL,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	stream := cfg.Stream
	if stream == "" {
		stream = "shardpulse"
	}

	return &RedisExporter{client: client, stream: stream}, nil
}

// Export appends one compressed snapshot to the stream
func (e *RedisExporter) Export(ctx context.Context, snapshot Snapshot) error {
	payload, err := encode(snapshot)
	if err != nil {
		return err
	}

	err = e.client.XAdd(ctx, &redis.XAddArgs{
		Stream: e.stream,
		ID:     "*",
		Values: map[string]interface{}{
			"snapshot": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append snapshot to stream %s: %w", e.stream, err)
	}
	return nil
}

// Close closes the Redis client
func (e *RedisExporter) Close() error {
	return e.client.Close()
}
