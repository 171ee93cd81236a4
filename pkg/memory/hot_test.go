// SPDX-License-Identifier: Apache-2.0
package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hotFixture struct {
	tier HotTier
	// expire moves the tier's TTL clock forward.
	expire func(d time.Duration)
}

func hotTiers(t *testing.T, ttl time.Duration) map[string]hotFixture {
	t.Helper()
	clock := newFakeClock()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]hotFixture{
		"memory": {tier: NewInMemoryHotTier(ttl, clock.Now), expire: clock.Advance},
		"redis":  {tier: NewRedisHotTier(client, ttl), expire: mr.FastForward},
	}
}

func TestHotTierTouchCountsEachRead(t *testing.T) {
	for name, fx := range hotTiers(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			it := item("m1", "n1", "launch on monday")
			it.CreatedAt, it.LastAccessed = now, now
			require.NoError(t, fx.tier.Put(ctx, it))

			for i := 1; i <= 3; i++ {
				got, ok, err := fx.tier.Touch(ctx, "m1", now.Add(time.Duration(i)*time.Minute))
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, int64(i), got.AccessCount)
				assert.Equal(t, int64(i), got.TierHits)
				assert.Equal(t, TierHot, got.Tier)
				assert.Equal(t, "launch on monday", got.Content)
			}

			_, ok, err := fx.tier.Touch(ctx, "missing", now)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHotTierSlidingTTL(t *testing.T) {
	for name, fx := range hotTiers(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			it := item("m1", "n1", "x")
			it.LastAccessed = now
			require.NoError(t, fx.tier.Put(ctx, it))

			fx.expire(50 * time.Minute)
			_, ok, err := fx.tier.Touch(ctx, "m1", now)
			require.NoError(t, err)
			require.True(t, ok, "item read before expiry must survive")

			fx.expire(50 * time.Minute)
			_, ok, err = fx.tier.Touch(ctx, "m1", now)
			require.NoError(t, err)
			require.True(t, ok, "a read must refresh the ttl")

			fx.expire(61 * time.Minute)
			items, err := fx.tier.Items(ctx, "n1")
			require.NoError(t, err)
			assert.Empty(t, items, "idle items age out")
		})
	}
}

func TestHotTierItemsAndDeletes(t *testing.T) {
	for name, fx := range hotTiers(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			for _, it := range []Item{item("a", "n1", "x"), item("b", "n1", "y"), item("c", "n2", "z")} {
				it.LastAccessed = now
				require.NoError(t, fx.tier.Put(ctx, it))
			}

			n1, err := fx.tier.Items(ctx, "n1")
			require.NoError(t, err)
			assert.Len(t, n1, 2)
			all, err := fx.tier.Items(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			ok, err := fx.tier.Delete(ctx, "a")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = fx.tier.Delete(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)

			n, err := fx.tier.DeleteNetwork(ctx, "n1")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			all, err = fx.tier.Items(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "c", all[0].ID)
		})
	}
}

func TestHotTierReleaseIfIdle(t *testing.T) {
	for name, fx := range hotTiers(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			it := item("m1", "n1", "x")
			it.LastAccessed = seen
			require.NoError(t, fx.tier.Put(ctx, it))

			_, _, err := fx.tier.Touch(ctx, "m1", seen.Add(time.Minute))
			require.NoError(t, err)
			released, err := fx.tier.ReleaseIfIdle(ctx, "m1", seen)
			require.NoError(t, err)
			assert.False(t, released, "an item read after the snapshot must stay")

			released, err = fx.tier.ReleaseIfIdle(ctx, "m1", seen.Add(time.Minute))
			require.NoError(t, err)
			assert.True(t, released)
			items, err := fx.tier.Items(ctx, "n1")
			require.NoError(t, err)
			assert.Empty(t, items)

			released, err = fx.tier.ReleaseIfIdle(ctx, "m1", seen)
			require.NoError(t, err)
			assert.True(t, released, "a missing item counts as released")
		})
	}
}
