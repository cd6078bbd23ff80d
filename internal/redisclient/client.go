package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireOrderLock takes the in-flight mutation lock for an order.
// Returns false when another mutation for the same order is still running.
// The TTL bounds lock leakage if a holder dies before releasing.
func (c *Client) AcquireOrderLock(ctx context.Context, orderID int64, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, orderLockKey(orderID), "1", ttl).Result()
}

// ReleaseOrderLock releases the in-flight mutation lock for an order
func (c *Client) ReleaseOrderLock(ctx context.Context, orderID int64) error {
	return c.rdb.Del(ctx, orderLockKey(orderID)).Err()
}

func orderLockKey(orderID int64) string {
	return fmt.Sprintf("order_lock:%d", orderID)
}

// SetIdempotencyKey stores a checkout idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("checkout:%s", key), orderID, ttl).Err()
}

// GetIdempotentOrderID looks up the order previously created for a
// checkout idempotency key. Returns (0, nil) when the key is unknown.
func (c *Client) GetIdempotentOrderID(ctx context.Context, key string) (int64, error) {
	id, err := c.rdb.Get(ctx, fmt.Sprintf("checkout:%s", key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return id, err
}
