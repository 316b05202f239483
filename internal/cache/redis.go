package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Key prefixes
const (
	DeliveryKeyPrefix = "itn:"
)

// releaseScript deletes the key only if it still holds our token, so a lock that
// expired and was re-acquired by another instance is never released by us
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client wraps Redis. A nil *Client is valid and behaves as "cache unavailable".
type Client struct {
	rdb *redis.Client
}

// Connect opens the Redis connection. On failure the caller should keep running without
// a cache; the returned *Client is nil in that case.
func Connect(ctx context.Context, addr, password string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		// Close the failed client for graceful degradation
		rdb.Close()
		return nil, err
	}
	return &Client{rdb: rdb}, nil
}

// Acquire takes a short-lived advisory lock. With no Redis it always succeeds, since the
// database compare-and-set remains the real guard.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error) {
	if c == nil {
		return func() {}, true, nil
	}

	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		// Redis hiccup: fall through to the database guard
		return func() {}, true, err
	}
	if !ok {
		return func() {}, false, nil
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		releaseScript.Run(ctx, c.rdb, []string{key}, token)
	}
	return release, true, nil
}

// Ping checks the connection; a nil client reports ErrUnavailable
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return ErrUnavailable
	}
	return c.rdb.Ping(ctx).Err()
}

// IsHealthy returns true if Redis connection is working
func (c *Client) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Ping(ctx) == nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// ErrUnavailable is returned when Redis was never connected
var ErrUnavailable = errors.New("redis unavailable")
