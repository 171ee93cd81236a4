// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/jllopis/agentnet/pkg/errors"
)

// mgetChunk bounds the keys per MGET round trip.
const mgetChunk = 100

// compareAndPutScript sets KEYS[2..] when KEYS[1] still holds ARGV[1].
// ARGV carries a value and a TTL in milliseconds (0 for none) per key.
var compareAndPutScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
  return 0
end
for i = 2, #KEYS do
  local value = ARGV[2 * i - 2]
  local ttl = tonumber(ARGV[2 * i - 1])
  if ttl > 0 then
    redis.call('SET', KEYS[i], value, 'PX', ttl)
  else
    redis.call('SET', KEYS[i], value)
  end
end
return 1
`)

// Redis is a KV backed by Redis strings and sets, shared by every
// orchestrator process.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps client. Every key is stored under prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func storeErr(op string, err error) error {
	return errors.New(errors.CodeStoreError, "redis "+op, err).WithRecoverable(true)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storeErr("get", err)
	}
	return b, true, nil
}

// MGet splits keys into chunks fetched concurrently.
func (r *Redis) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(keys); start += mgetChunk {
		chunk := keys[start:min(start+mgetChunk, len(keys))]
		g.Go(func() error {
			full := make([]string, len(chunk))
			for i, k := range chunk {
				full[i] = r.key(k)
			}
			vals, err := r.client.MGet(gctx, full...).Result()
			if err != nil {
				return storeErr("mget", err)
			}
			mu.Lock()
			defer mu.Unlock()
			for i, v := range vals {
				if s, ok := v.(string); ok {
					out[chunk[i]] = []byte(s)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Redis) PutMany(ctx context.Context, entries ...Entry) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, e := range entries {
			p.Set(ctx, r.key(e.Key), e.Value, e.TTL)
		}
		return nil
	})
	if err != nil {
		return storeErr("put", err)
	}
	return nil
}

// CompareAndPut runs as one Lua script, so every key must live on the same
// node when the client is a cluster.
func (r *Redis) CompareAndPut(ctx context.Context, key string, old []byte, entries ...Entry) (bool, error) {
	keys := make([]string, 0, 1+len(entries))
	args := make([]interface{}, 0, 1+2*len(entries))
	keys = append(keys, r.key(key))
	args = append(args, old)
	for _, e := range entries {
		keys = append(keys, r.key(e.Key))
		args = append(args, e.Value, e.TTL.Milliseconds())
	}
	n, err := compareAndPutScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return false, storeErr("compare and put", err)
	}
	return n == 1, nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return storeErr("delete", err)
	}
	return nil
}

func (r *Redis) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	k := r.key(key)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, k, args...)
		if ttl > 0 {
			p.Expire(ctx, k, ttl)
		} else {
			p.Persist(ctx, k)
		}
		return nil
	})
	if err != nil {
		return storeErr("sadd", err)
	}
	return nil
}

func (r *Redis) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := r.client.SRem(ctx, r.key(key), args...).Err(); err != nil {
		return storeErr("srem", err)
	}
	return nil
}

func (r *Redis) SetMembers(ctx context.Context, key string) ([]string, error) {
	out, err := r.client.SMembers(ctx, r.key(key)).Result()
	if err != nil {
		return nil, storeErr("smembers", err)
	}
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ KV = (*Redis)(nil)
