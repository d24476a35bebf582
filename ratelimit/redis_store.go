// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces the keys a RedisStore writes.
const DefaultRedisKeyPrefix = "oauthlab:ratelimit:"

// RedisConfig holds the connection settings for NewRedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// incrScript counts one request in the hash at KEYS[1]. ARGV[1] is the
// current time and ARGV[2] the window length, both in milliseconds.
var incrScript = redis.NewScript(`
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset_at'))
local now = tonumber(ARGV[1])
if reset and now < reset and redis.call('HEXISTS', KEYS[1], 'count') == 1 then
	local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
	return {count, reset}
end
reset = now + tonumber(ARGV[2])
redis.call('HSET', KEYS[1], 'count', 1, 'reset_at', reset)
redis.call('PEXPIREAT', KEYS[1], reset)
return {1, reset}
`)

// RedisStore keeps entries in Redis hashes that expire when their window
// does, so several processes can share one quota. Incr runs as a single
// script, so concurrent instances never lose a count.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	const op = "ratelimit.NewRedisStore"
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%s: redis address is empty: %w", op, ErrInvalidParameter)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: unable to ping redis: %w", op, err)
	}
	return NewRedisStoreFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client. An empty prefix selects
// DefaultRedisKeyPrefix.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Incr(ctx context.Context, key string, now time.Time, window time.Duration) (Entry, error) {
	const op = "RedisStore.Incr"
	res, err := incrScript.Run(ctx, s.client, []string{s.key(key)}, now.UnixMilli(), window.Milliseconds()).Int64Slice()
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	if len(res) != 2 {
		return Entry{}, fmt.Errorf("%s: unexpected script result %v: %w", op, res, ErrStore)
	}
	return Entry{Count: int(res[0]), ResetAt: time.UnixMilli(res[1])}, nil
}

// Get returns the entry for key. The boolean is false when there is none.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	const op = "RedisStore.Get"
	vals, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	if len(vals) == 0 {
		return Entry{}, false, nil
	}
	count, err := strconv.Atoi(vals["count"])
	if err != nil {
		return Entry{}, false, fmt.Errorf("%s: corrupt count: %w", op, ErrStore)
	}
	resetMillis, err := strconv.ParseInt(vals["reset_at"], 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%s: corrupt reset time: %w", op, ErrStore)
	}
	return Entry{Count: count, ResetAt: time.UnixMilli(resetMillis)}, true, nil
}

// Set creates or replaces the entry for key.
func (s *RedisStore) Set(ctx context.Context, key string, e Entry) error {
	const op = "RedisStore.Set"
	k := s.key(key)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, "count", e.Count, "reset_at", e.ResetAt.UnixMilli())
	pipe.PExpireAt(ctx, k, e.ResetAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	return nil
}

// Sweep is a no-op; Redis expires each hash when its window ends.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
