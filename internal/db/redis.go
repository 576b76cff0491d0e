package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/milk-back/backend/internal/config"
	"github.com/milk-back/backend/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	casStatusNotFound int64 = 0
	casStatusSwapped  int64 = 1
	casStatusMismatch int64 = 2
)

// KEYS[1] session key, ARGV[1] expected value, ARGV[2] replacement.
const compareAndSwapScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 2
end
redis.call("SET", KEYS[1], ARGV[2])
return 1
`

var compareAndSwapLua = redis.NewScript(compareAndSwapScript)

// RedisSessionStore binds session keys to refresh tokens. Values carry no TTL.
type RedisSessionStore struct {
	redis redis.UniversalClient
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{redis: client}
}

func (s *RedisSessionStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", model.ErrSessionNotFound
		}
		return "", unavailable(err)
	}
	return val, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, key, value string) error {
	if err := s.redis.Set(ctx, key, value, 0).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisSessionStore) CompareAndSwap(ctx context.Context, key, old, value string) error {
	status, err := compareAndSwapLua.Run(ctx, s.redis, []string{key}, old, value).Int64()
	if err != nil {
		return unavailable(err)
	}

	switch status {
	case casStatusSwapped:
		return nil
	case casStatusNotFound:
		return model.ErrSessionNotFound
	case casStatusMismatch:
		return model.ErrSessionMismatch
	default:
		return fmt.Errorf("unexpected compare-and-swap status %d", status)
	}
}

// Delete is idempotent.
func (s *RedisSessionStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisSessionStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
}
