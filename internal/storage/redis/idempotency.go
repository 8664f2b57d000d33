// Package redis keeps idempotency records for order placement in Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyStore maps (scope, key) pairs to the id of the order a request
// produced. A lock taken with TryLock stops a concurrent duplicate from
// running while the first request is still in flight.
type IdempotencyStore struct {
	rdb    goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewIdempotencyStore returns a store whose records expire after ttl.
func NewIdempotencyStore(rdb goredis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl, prefix: "gmarket:idemp:"}
}

func (s *IdempotencyStore) lockKey(scope, key string) string {
	return s.prefix + "lock:" + scope + ":" + key
}

func (s *IdempotencyStore) resultKey(scope, key string) string {
	return s.prefix + "map:" + scope + ":" + key
}

// TryLock reports whether the caller acquired the lock for (scope, key).
func (s *IdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.lockKey(scope, key), "1", s.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "lock idempotency key")
	}
	return ok, nil
}

// Release drops the lock so a failed request can be retried with the same key.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := s.rdb.Del(ctx, s.lockKey(scope, key)).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}

// Remember records the result of a completed request.
func (s *IdempotencyStore) Remember(ctx context.Context, scope, key, value string) error {
	if err := s.rdb.Set(ctx, s.resultKey(scope, key), value, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "remember idempotency key")
	}
	return nil
}

// Recall returns the recorded result for (scope, key), if any.
func (s *IdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, s.resultKey(scope, key)).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrap(err, "recall idempotency key")
	}
	return val, true, nil
}

// Ping checks connectivity for readiness checks.
func (s *IdempotencyStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
