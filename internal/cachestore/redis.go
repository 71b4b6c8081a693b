package cachestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// redisKeyPrefix namespaces all entries written by this application.
	redisKeyPrefix = "gradeflow"

	// DefaultRedisTTL bounds how long cached AI results live in Redis. Disk
	// backends keep entries forever; a shared Redis should eventually shed
	// entries for exams nobody re-runs.
	DefaultRedisTTL = 30 * 24 * time.Hour
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g. "redis://localhost:6379").
	URL string

	// TTL is the time-to-live for cached entries (defaults to 30 days).
	TTL time.Duration
}

// Redis implements Store on a shared Redis instance, for teams grading the
// same scripts from more than one machine.
type Redis struct {
	counters
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedis creates a Redis-backed store and verifies the connection.
func NewRedis(cfg RedisConfig, log *slog.Logger) (*Redis, error) {
	if log == nil {
		log = slog.Default()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}

	log.Info("redis cache connected", "ttl", ttl)

	return &Redis{client: client, ttl: ttl, log: log}, nil
}

func redisKey(category, key string) string {
	return redisKeyPrefix + ":" + category + ":" + key
}

// Get retrieves an entry. Connection errors are misses, never caller errors.
func (s *Redis) Get(ctx context.Context, category, key string) ([]byte, bool) {
	data, err := s.client.Get(ctx, redisKey(category, key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Debug("redis get failed, treating as miss",
				"category", category, "error", err)
		}
		s.miss()
		return nil, false
	}

	s.hit()
	return data, true
}

// Put stores an entry with the configured TTL.
func (s *Redis) Put(ctx context.Context, category, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKey(category, key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry in redis: %w", err)
	}
	return nil
}

// Clear removes every entry in a category. Operator action only.
func (s *Redis) Clear(category string) error {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, redisKey(category, "*"), 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cache entry: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache entries: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *Redis) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
