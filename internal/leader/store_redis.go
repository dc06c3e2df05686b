package leader

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua scripts guarding the holder check and the mutation in one round trip,
// so a replica can never extend or delete a lease it no longer owns.
var (
	refreshScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
)

// RedisLeaseStore implements LeaseStore on a shared Redis instance.
type RedisLeaseStore struct {
	client *redis.Client
}

func NewRedisLeaseStore(client *redis.Client) *RedisLeaseStore {
	return &RedisLeaseStore{client: client}
}

func (s *RedisLeaseStore) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return ok, nil
}

func (s *RedisLeaseStore) Refresh(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	res, err := refreshScript.Run(ctx, s.client, []string{key}, holder, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("refresh lease: %w", err)
	}
	return res == 1, nil
}

func (s *RedisLeaseStore) Release(ctx context.Context, key, holder string) error {
	if _, err := releaseScript.Run(ctx, s.client, []string{key}, holder).Result(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
