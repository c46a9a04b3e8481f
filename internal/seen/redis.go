package seen

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultRedisTTL = 7 * 24 * time.Hour

// RedisStore keeps each day's set under its storage key with a TTL, so
// old days expire on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context, key string) (Set, error) {
	payload, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Set{}, ErrNotFound
	}
	if err != nil {
		return Set{}, err
	}
	return decodeSet(payload)
}

func (r *RedisStore) Save(ctx context.Context, key string, set Set) error {
	payload, err := encodeSet(set)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, payload, r.ttl).Err()
}

// Prune is a no-op: expiry is delegated to the key TTL.
func (r *RedisStore) Prune(context.Context, string) (int64, error) {
	return 0, nil
}
