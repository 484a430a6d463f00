package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis adapts a Redis-compatible server to the Store interface. Sliding
// window checks are submitted as a single MULTI/EXEC pipeline so that two
// concurrent checks for the same identity serialize on the server.
type Redis struct {
	rdb redis.Cmdable
}

// NewRedis creates a Redis store backed by the given client.
func NewRedis(rdb redis.Cmdable) *Redis {
	return &Redis{rdb: rdb}
}

// Slide purges, records, and counts in one atomic batch.
func (r *Redis) Slide(ctx context.Context, key string, windowStart, now time.Time, ttl time.Duration) (int64, error) {
	// Microsecond scores fit a float64 exactly; members carry a uuid
	// suffix so events sharing a timestamp never collapse to one entry.
	nowMicro := now.UnixMicro()
	member := strconv.FormatInt(nowMicro, 10) + ":" + uuid.NewString()

	pipe := r.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixMicro(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMicro), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("sliding window exec: %w", err)
	}
	return card.Val(), nil
}

// Get returns the value stored under key, or ErrNotFound.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key. The TTL is the store's own eviction
// mechanism, independent of any logical expiry check by callers.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Verify interface compliance.
var _ Store = (*Redis)(nil)
