package shelfstate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/saaga0h/shelf-bridge/pkg/redis"
)

// RedisStore keeps one hash per shelf:
//
//	shelf:state:{shelf} -> d1_mm | d2_mm | weight_g | updated_at (RFC3339Nano)
type RedisStore struct {
	redis  redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisStore creates a store backed by redisClient
func NewRedisStore(redisClient redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// Upsert writes the field and the updated_at marker in one HSET
func (s *RedisStore) Upsert(ctx context.Context, shelf int, field Field, value float64) error {
	if err := checkWrite(shelf, field); err != nil {
		return err
	}

	key := redis.ShelfStateKey(shelf)
	fields := map[string]interface{}{
		string(field):  strconv.FormatFloat(value, 'f', -1, 64),
		FieldUpdatedAt: s.now().UTC().Format(time.RFC3339Nano),
	}

	if err := s.redis.HSetFields(ctx, key, fields); err != nil {
		return fmt.Errorf("failed to upsert shelf %d %s: %w", shelf, field, err)
	}

	s.logger.Debug("Stored shelf reading", "shelf", shelf, "field", field, "value", value)
	return nil
}

// Read loads the shelf hash
func (s *RedisStore) Read(ctx context.Context, shelf int) (*State, error) {
	key := redis.ShelfStateKey(shelf)

	values, err := s.redis.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read shelf %d: %w", shelf, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: shelf %d", ErrNotFound, shelf)
	}

	st := &State{Shelf: shelf}
	for _, f := range []Field{FieldPrimaryDistance, FieldSecondaryDistance, FieldWeight} {
		raw, ok := values[string(f)]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.logger.Warn("Ignoring corrupt shelf field", "key", key, "field", f, "value", raw)
			continue
		}
		st.set(f, v)
	}

	if raw, ok := values[FieldUpdatedAt]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			st.UpdatedAt = ts
		}
	}

	return st, nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx)
}
