package cancel

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultFlagTTL bounds how long an unobserved flag lingers in Redis.
const DefaultFlagTTL = 24 * time.Hour

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"PAGEFORGE_REDIS_ADDR"`
	Password string `yaml:"password" env:"PAGEFORGE_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"PAGEFORGE_REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"PAGEFORGE_REDIS_PREFIX"`
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Redis stores flags in Redis so that a cancel issued to any daemon
// replica reaches the replica running the loop.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedis wraps a Redis client. An empty prefix defaults to "pageforge".
func NewRedis(client redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = "pageforge"
	}
	return &Redis{client: client, prefix: prefix, ttl: DefaultFlagTTL}
}

func (r *Redis) key(taskID string) string {
	return r.prefix + ":cancel:" + taskID
}

func (r *Redis) Request(ctx context.Context, taskID string) error {
	if err := r.client.Set(ctx, r.key(taskID), 1, r.ttl).Err(); err != nil {
		return fmt.Errorf("set cancel flag: %w", err)
	}
	return nil
}

func (r *Redis) Requested(ctx context.Context, taskID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(taskID)).Result()
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Clear(ctx context.Context, taskID string) error {
	if err := r.client.Del(ctx, r.key(taskID)).Err(); err != nil {
		return fmt.Errorf("clear cancel flag: %w", err)
	}
	return nil
}
