package redis

import "context"

// Client represents a Redis client interface for testing and abstraction
type Client interface {
	// HSetFields sets several fields of a hash in a single HSET command
	HSetFields(ctx context.Context, key string, fields map[string]interface{}) error

	// HGetAll gets all fields from a hash
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Ping checks the connection to Redis
	Ping(ctx context.Context) error

	// Close closes the Redis connection
	Close() error
}
