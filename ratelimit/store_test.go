// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	require, assert := require.New(t), assert.New(t)
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(err)
	assert.False(ok)

	require.NoError(s.Set(ctx, "live", Entry{Count: 2, ResetAt: now.Add(time.Minute)}))
	require.NoError(s.Set(ctx, "elapsed", Entry{Count: 9, ResetAt: now.Add(-time.Second)}))
	require.NoError(s.Set(ctx, "boundary", Entry{Count: 1, ResetAt: now}))

	e, ok, err := s.Get(ctx, "live")
	require.NoError(err)
	assert.True(ok)
	assert.Equal(2, e.Count)

	n, err := s.Sweep(ctx, now)
	require.NoError(err)
	assert.Equal(2, n)
	assert.Equal(1, s.Len())
}

func TestMemoryStore_Incr(t *testing.T) {
	t.Parallel()
	require, assert := require.New(t), assert.New(t)
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore()

	e, err := s.Incr(ctx, "client", now, time.Minute)
	require.NoError(err)
	assert.Equal(Entry{Count: 1, ResetAt: now.Add(time.Minute)}, e)

	e, err = s.Incr(ctx, "client", now.Add(time.Second), time.Minute)
	require.NoError(err)
	assert.Equal(Entry{Count: 2, ResetAt: now.Add(time.Minute)}, e)

	later := now.Add(time.Minute)
	e, err = s.Incr(ctx, "client", later, time.Minute)
	require.NoError(err)
	assert.Equal(Entry{Count: 1, ResetAt: later.Add(time.Minute)}, e)
}

func testRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	t.Parallel()
	require, assert := require.New(t), assert.New(t)
	ctx := context.Background()
	s, mr := testRedisStore(t)

	_, ok, err := s.Get(ctx, "198.51.100.4")
	require.NoError(err)
	assert.False(ok)

	reset := time.Now().Add(time.Minute).Truncate(time.Millisecond)
	require.NoError(s.Set(ctx, "198.51.100.4", Entry{Count: 4, ResetAt: reset}))
	assert.True(mr.Exists(DefaultRedisKeyPrefix + "198.51.100.4"))

	e, ok, err := s.Get(ctx, "198.51.100.4")
	require.NoError(err)
	require.True(ok)
	assert.Equal(4, e.Count)
	assert.True(reset.Equal(e.ResetAt))

	n, err := s.Sweep(ctx, time.Now().Add(time.Hour))
	require.NoError(err)
	assert.Zero(n)

	mr.FastForward(2 * time.Minute)
	_, ok, err = s.Get(ctx, "198.51.100.4")
	require.NoError(err)
	assert.False(ok)
}

func TestRedisStore_Incr(t *testing.T) {
	t.Parallel()
	require, assert := require.New(t), assert.New(t)
	ctx := context.Background()
	s, mr := testRedisStore(t)
	now := time.Now().Truncate(time.Millisecond)

	e, err := s.Incr(ctx, "client", now, time.Minute)
	require.NoError(err)
	assert.Equal(1, e.Count)
	assert.True(now.Add(time.Minute).Equal(e.ResetAt))
	assert.True(mr.Exists(DefaultRedisKeyPrefix + "client"))

	e, err = s.Incr(ctx, "client", now.Add(time.Second), time.Minute)
	require.NoError(err)
	assert.Equal(2, e.Count)
	assert.True(now.Add(time.Minute).Equal(e.ResetAt))

	got, ok, err := s.Get(ctx, "client")
	require.NoError(err)
	require.True(ok)
	assert.Equal(2, got.Count)

	later := now.Add(time.Minute)
	e, err = s.Incr(ctx, "client", later, time.Minute)
	require.NoError(err)
	assert.Equal(1, e.Count)
	assert.True(later.Add(time.Minute).Equal(e.ResetAt))
}

func TestRedisStore_Incr_Concurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := testRedisStore(t)
	now := time.Now()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Incr(ctx, "shared", now, time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	e, ok, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, n, e.Count)
}

func TestRedisStore_Corrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := testRedisStore(t)
	mr.HSet(DefaultRedisKeyPrefix+"bad", "count", "many", "reset_at", "0")

	_, _, err := s.Get(ctx, "bad")
	require.ErrorIs(t, err, ErrStore)
}

func TestNewRedisStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := NewRedisStore(ctx, RedisConfig{})
	require.ErrorIs(t, err, ErrInvalidParameter)

	mr := miniredis.RunT(t)
	s, err := NewRedisStore(ctx, RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Set(ctx, "k", Entry{Count: 1, ResetAt: time.Now().Add(time.Minute)}))
	assert.True(t, mr.Exists("test:k"))
}

func TestLimiter_RedisStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := testRedisStore(t)
	l, clock := testLimiter(t, s, WithLimit(2))

	for i := 0; i < 2; i++ {
		d, err := l.Check(ctx, "client")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Check(ctx, "client")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	clock.Advance(DefaultWindow)
	d, err = l.Check(ctx, "client")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}
