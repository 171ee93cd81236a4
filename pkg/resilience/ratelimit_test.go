// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aerrors "github.com/jllopis/agentnet/pkg/errors"
)

func bucketStores(t *testing.T) map[string]BucketStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]BucketStore{
		"memory": NewMemoryBucketStore(),
		"redis":  NewRedisBucketStore(client),
	}
}

func TestTokenBucketConservation(t *testing.T) {
	for name, store := range bucketStores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			limiter, err := NewTokenBucketLimiter(store, LimiterConfig{
				BucketSpec: BucketSpec{Capacity: 5, RefillRate: 2, RefillInterval: time.Second},
				Clock:      clock.Now,
			}, nil)
			require.NoError(t, err)
			ctx := context.Background()

			denied := 0
			for i := 0; i < 6; i++ {
				d, err := limiter.Allow(ctx, "alice:n1", 1)
				require.NoError(t, err)
				if !d.Allowed {
					denied++
					assert.Equal(t, 500*time.Millisecond, d.Wait)
				}
			}
			assert.Equal(t, 1, denied, "exactly one of C+1 requests must be denied")

			clock.Advance(time.Second)
			allowed := 0
			for i := 0; i < 2; i++ {
				d, err := limiter.Allow(ctx, "alice:n1", 1)
				require.NoError(t, err)
				if d.Allowed {
					allowed++
				}
			}
			assert.Equal(t, 2, allowed, "a full interval must refill at least R tokens")
		})
	}
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	for name, store := range bucketStores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			limiter, err := NewTokenBucketLimiter(store, LimiterConfig{
				BucketSpec: BucketSpec{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute},
				Clock:      clock.Now,
			}, nil)
			require.NoError(t, err)
			ctx := context.Background()

			require.NoError(t, limiter.Check(ctx, "a"))
			require.NoError(t, limiter.Check(ctx, "b"))
			err = limiter.Check(ctx, "a")
			require.True(t, aerrors.HasCode(err, aerrors.CodeRateLimit))
			wait, ok := aerrors.WaitHint(err)
			require.True(t, ok)
			assert.Equal(t, time.Minute, wait)
		})
	}
}

func TestTokenBucketConcurrentCallersSeeLinearizableDecrement(t *testing.T) {
	for name, store := range bucketStores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			limiter, err := NewTokenBucketLimiter(store, LimiterConfig{
				BucketSpec: BucketSpec{Capacity: 20, RefillRate: 1, RefillInterval: time.Hour},
				Clock:      clock.Now,
			}, nil)
			require.NoError(t, err)

			var allowed atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d, err := limiter.Allow(context.Background(), "shared", 1)
					if err == nil && d.Allowed {
						allowed.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int64(20), allowed.Load())
		})
	}
}

func TestTokenBucketWaitRetriesOnce(t *testing.T) {
	limiter, err := NewTokenBucketLimiter(NewMemoryBucketStore(), LimiterConfig{
		BucketSpec: BucketSpec{Capacity: 1, RefillRate: 1, RefillInterval: 30 * time.Millisecond},
		MaxWait:    time.Second,
	}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "k", 1))
	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "k", 1))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTokenBucketWaitBeyondCap(t *testing.T) {
	var deniedKeys []string
	limiter, err := NewTokenBucketLimiter(NewMemoryBucketStore(), LimiterConfig{
		BucketSpec: BucketSpec{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour},
		MaxWait:    time.Second,
		OnDenied:   func(key string, _ time.Duration) { deniedKeys = append(deniedKeys, key) },
	}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "k", 1))
	err = limiter.Wait(ctx, "k", 1)
	assert.True(t, aerrors.HasCode(err, aerrors.CodeRateLimit))
	assert.Equal(t, []string{"k"}, deniedKeys)
}

func TestTokenBucketRejectsOversizedRequests(t *testing.T) {
	limiter, err := NewTokenBucketLimiter(NewMemoryBucketStore(), LimiterConfig{
		BucketSpec: BucketSpec{Capacity: 2, RefillRate: 1, RefillInterval: time.Second},
	}, nil)
	require.NoError(t, err)
	_, err = limiter.Allow(context.Background(), "k", 3)
	assert.True(t, aerrors.HasCode(err, aerrors.CodeValidation))

	_, err = NewTokenBucketLimiter(NewMemoryBucketStore(), LimiterConfig{}, nil)
	assert.Error(t, err)
}
