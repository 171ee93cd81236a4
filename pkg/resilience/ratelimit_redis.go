// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills, decides and consumes in one server-side step.
// KEYS[1] bucket key
// ARGV: capacity, refill_rate, refill_interval_ms, now_ms, requested, ttl_ms
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local requested = tonumber(ARGV[5])
local ttl = tonumber(ARGV[6])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end
if now > ts then
  tokens = math.min(capacity, tokens + ((now - ts) / interval) * rate)
  ts = now
end

local allowed = 0
local wait = 0
if tokens >= requested then
  tokens = tokens - requested
  allowed = 1
else
  wait = math.ceil(((requested - tokens) / rate) * interval)
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', KEYS[1], ttl)
return {allowed, tostring(tokens), wait}
`)

// RedisBucketStore keeps buckets in Redis so several orchestrator processes
// share one budget per key.
type RedisBucketStore struct {
	client redis.Scripter
}

// NewRedisBucketStore wraps a Redis client.
func NewRedisBucketStore(client redis.Scripter) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

// Take implements BucketStore.
func (s *RedisBucketStore) Take(ctx context.Context, key string, spec BucketSpec, tokens float64, now time.Time) (Decision, error) {
	intervalMs := spec.RefillInterval.Milliseconds()
	if intervalMs < 1 {
		intervalMs = 1
	}
	// Keep an idle bucket around for twice the time it takes to refill completely.
	fullRefill := time.Duration(spec.Capacity / spec.RefillRate * float64(spec.RefillInterval))
	ttl := 2 * fullRefill
	if ttl < time.Second {
		ttl = time.Second
	}

	res, err := tokenBucketScript.Run(ctx, s.client, []string{key},
		strconv.FormatFloat(spec.Capacity, 'f', -1, 64),
		strconv.FormatFloat(spec.RefillRate, 'f', -1, 64),
		intervalMs,
		now.UnixMilli(),
		strconv.FormatFloat(tokens, 'f', -1, 64),
		ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("token bucket script: unexpected reply %v", res)
	}
	allowed, _ := res[0].(int64)
	remainingRaw, _ := res[1].(string)
	remaining, err := strconv.ParseFloat(remainingRaw, 64)
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket script: bad remaining %q: %w", remainingRaw, err)
	}
	waitMs, _ := res[2].(int64)
	return Decision{
		Allowed:   allowed == 1,
		Remaining: remaining,
		Wait:      time.Duration(waitMs) * time.Millisecond,
	}, nil
}
