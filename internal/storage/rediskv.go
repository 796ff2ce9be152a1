package storage

import (
	"context"
	"errors"

	"github.com/djsadd/AcademicQuestionBot/internal/redis"
)

// RedisKV keeps the persisted state in redis. Entries never expire;
// the client is the sole writer of its identity-scoped keys.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return "", ErrKeyNotFound
		}
		return "", err
	}
	return value, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0)
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key)
}
