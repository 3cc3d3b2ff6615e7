// Package redis mirrors the live position table into Redis so other
// services can read current aircraft state without talking to the
// ingest process. Entries carry a TTL matching the position timeout,
// so Redis forgets an aircraft on its own when updates stop.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/openaero/airstate/internal/types"
)

// DefaultTTL matches the default position timeout of the in-memory store.
const DefaultTTL = 2 * time.Minute

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
	ttl    time.Duration
}

// New creates a new Redis client. ttl bounds how long a mirrored
// position outlives its last update; zero or negative selects DefaultTTL.
func New(addr string, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{client: client, ttl: ttl}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

func positionKey(icao24 string) string {
	return fmt.Sprintf("aircraft:%s", icao24)
}

// StorePosition mirrors the latest state of one aircraft into Redis.
func (c *Client) StorePosition(ctx context.Context, rec *types.PositionReport) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	return c.client.Set(ctx, positionKey(rec.ICAO24), data, c.ttl).Err()
}

// getData retrieves data from Redis and unmarshals it into the target.
// The bool reports whether the key existed.
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil // Data not found
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}

	return true, nil
}

// GetPosition retrieves the mirrored state of one aircraft. It returns
// nil without error when the aircraft is not mirrored.
func (c *Client) GetPosition(ctx context.Context, icao24 string) (*types.PositionReport, error) {
	var rec types.PositionReport
	found, err := c.getData(ctx, positionKey(icao24), &rec, "position")
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// DeletePosition removes the mirrored state of one aircraft.
func (c *Client) DeletePosition(ctx context.Context, icao24 string) error {
	return c.client.Del(ctx, positionKey(icao24)).Err()
}
