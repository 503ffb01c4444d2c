package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shopassist/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis client to centralize configuration.
type Client struct {
	inner *redis.Client
	ttl   time.Duration
}

// ErrCacheMiss mirrors redis.Nil for callers.
var ErrCacheMiss = redis.Nil

var errNotInitialized = errors.New("redis client not initialized")

// ErrVersionChanged is returned by SetIfVersion when the guard key moved.
var ErrVersionChanged = errors.New("version changed")

// NewRedisClient creates the redis client from app config and pings it.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	host := cfg.Redis.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Redis.Port
	if port == 0 {
		port = 6379
	}
	ttl := time.Duration(cfg.Redis.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = config.DefaultRedisTTL * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{inner: client, ttl: ttl}, nil
}

// TTL is the expiry applied to cached entries.
func (c *Client) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

// Get fetches the key as string.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.inner == nil {
		return "", errNotInitialized
	}
	return c.inner.Get(ctx, key).Result()
}

// Version reads the counter at key; a missing key is version 0.
func (c *Client) Version(ctx context.Context, key string) (int64, error) {
	if c == nil || c.inner == nil {
		return 0, errNotInitialized
	}
	v, err := c.inner.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Bump increments the counter at key and deletes dropKeys in one transaction.
func (c *Client) Bump(ctx context.Context, key string, dropKeys ...string) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	_, err := c.inner.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, key)
		// outlive every entry written under the previous version
		p.Expire(ctx, key, 2*c.TTL())
		if len(dropKeys) > 0 {
			p.Del(ctx, dropKeys...)
		}
		return nil
	})
	return err
}

// SetIfVersion stores value at key with the configured TTL, but only while
// versionKey still holds version.
func (c *Client) SetIfVersion(ctx context.Context, versionKey string, version int64, key string, value interface{}) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	err := c.inner.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if errors.Is(err, redis.Nil) {
			current, err = 0, nil
		}
		if err != nil {
			return err
		}
		if current != version {
			return ErrVersionChanged
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, value, c.TTL())
			return nil
		})
		return err
	}, versionKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionChanged
	}
	return err
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// Raw exposes underlying go-redis client.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
