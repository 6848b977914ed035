// Package rediscache shares fetched catalog entries between processes through
// Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rorkai/21st-sub000/catalog"
)

// Config holds Redis connection and caching settings.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key.
	Prefix string
	// TTL bounds how long an entry is served from Redis.
	TTL time.Duration
}

// DefaultConfig returns the default Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:   "localhost:6379",
		Prefix: "regscan:catalog:",
		TTL:    10 * time.Minute,
	}
}

// Lookup decorates a catalog.Lookup with a Redis read-through cache. Redis
// failures are logged and fall through to the wrapped lookup.
type Lookup struct {
	client *redis.Client
	next   catalog.Lookup
	cfg    Config
	logger *slog.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, next catalog.Lookup, logger *slog.Logger) (*Lookup, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg, next, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, cfg Config, next catalog.Lookup, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{client: client, next: next, cfg: cfg, logger: logger}
}

func (l *Lookup) key(ref catalog.Ref) string {
	return l.cfg.Prefix + ref.Key()
}

// Fetch implements catalog.Lookup.
func (l *Lookup) Fetch(ctx context.Context, ref catalog.Ref) (*catalog.Node, error) {
	data, err := l.client.Get(ctx, l.key(ref)).Bytes()
	switch {
	case err == nil:
		var node catalog.Node
		jerr := json.Unmarshal(data, &node)
		if jerr == nil {
			return &node, nil
		}
		l.logger.Warn("Discarding corrupt cached entry", "ref", ref.Key(), "error", jerr)
	case errors.Is(err, redis.Nil):
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.logger.Warn("Redis read failed", "ref", ref.Key(), "error", err)
	}

	node, err := l.next.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(node); err == nil {
		if err := l.client.Set(ctx, l.key(ref), data, l.cfg.TTL).Err(); err != nil {
			l.logger.Warn("Redis write failed", "ref", ref.Key(), "error", err)
		}
	}
	return node, nil
}

// Invalidate removes cached entries.
func (l *Lookup) Invalidate(ctx context.Context, refs ...catalog.Ref) error {
	if len(refs) == 0 {
		return nil
	}
	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = l.key(ref)
	}
	return l.client.Del(ctx, keys...).Err()
}

// Close closes the Redis connection.
func (l *Lookup) Close() error {
	return l.client.Close()
}
