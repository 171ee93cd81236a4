// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jllopis/agentnet/pkg/errors"
)

const hotKeyPrefix = "memory:hot:"

// touchScript increments the read counters and slides the TTL in one step.
// KEYS[1] item hash
// ARGV: now_ms, ttl_ms
var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
redis.call('HINCRBY', KEYS[1], 'access_count', 1)
redis.call('HINCRBY', KEYS[1], 'tier_hits', 1)
redis.call('HSET', KEYS[1], 'last_accessed', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return redis.call('HMGET', KEYS[1], 'data', 'access_count', 'last_accessed', 'tier_hits')
`)

// releaseIfIdleScript removes an item unless it was read after ARGV[1].
// A missing item counts as released.
// KEYS[1] item hash, KEYS[2] id set
// ARGV: last_accessed_ms, network set prefix
var releaseIfIdleScript = redis.NewScript(`
local la = redis.call('HGET', KEYS[1], 'last_accessed')
if not la then
  return 1
end
if tonumber(la) > tonumber(ARGV[1]) then
  return 0
end
local nid = redis.call('HGET', KEYS[1], 'network_id')
local id = redis.call('HGET', KEYS[1], 'id')
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], id)
if nid then
  redis.call('SREM', ARGV[2] .. nid, id)
end
return 1
`)

// deleteScript removes an item and its index entries.
// KEYS[1] item hash, KEYS[2] id set
// ARGV: id, network set prefix
var deleteScript = redis.NewScript(`
local nid = redis.call('HGET', KEYS[1], 'network_id')
local n = redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
if nid then
  redis.call('SREM', ARGV[2] .. nid, ARGV[1])
end
return n
`)

// RedisHotTier keeps hot items as Redis hashes with a sliding PEXPIRE, so the
// hot tier is shared by every orchestrator process. Read counters live in
// separate hash fields and are only changed server-side.
type RedisHotTier struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisHotTier wraps a Redis client.
func NewRedisHotTier(client redis.UniversalClient, ttl time.Duration) *RedisHotTier {
	return &RedisHotTier{client: client, ttl: ttl}
}

func itemKey(id string) string        { return hotKeyPrefix + id }
func networkSetKey(nid string) string { return hotKeyPrefix + "network:" + nid }
func idSetKey() string                { return hotKeyPrefix + "ids" }
func networkSetPrefix() string        { return hotKeyPrefix + "network:" }
func millis(t time.Time) string       { return strconv.FormatInt(t.UnixMilli(), 10) }
func fromMillis(ms int64) time.Time   { return time.UnixMilli(ms).UTC() }
func hotErr(op string, err error) error {
	return errors.New(errors.CodeMemoryError, "hot tier "+op, err).WithRecoverable(true)
}

func (h *RedisHotTier) Put(ctx context.Context, it Item) error {
	it.Tier = TierHot
	data, err := json.Marshal(it)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "encode memory item", err)
	}
	key := itemKey(it.ID)
	_, err = h.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"id", it.ID,
			"data", data,
			"network_id", it.NetworkID,
			"access_count", it.AccessCount,
			"last_accessed", millis(it.LastAccessed),
			"tier_hits", it.TierHits,
		)
		p.PExpire(ctx, key, h.ttl)
		p.SAdd(ctx, idSetKey(), it.ID)
		p.SAdd(ctx, networkSetKey(it.NetworkID), it.ID)
		return nil
	})
	if err != nil {
		return hotErr("put", err)
	}
	return nil
}

func (h *RedisHotTier) Touch(ctx context.Context, id string, now time.Time) (Item, bool, error) {
	res, err := touchScript.Run(ctx, h.client, []string{itemKey(id)}, millis(now), h.ttl.Milliseconds()).Slice()
	if err == redis.Nil {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, hotErr("touch", err)
	}
	fields := make([]string, len(res))
	for i, v := range res {
		s, _ := v.(string)
		fields[i] = s
	}
	it, err := decodeHot(fields[0], fields[1], fields[2], fields[3])
	if err != nil {
		return Item{}, false, err
	}
	return it, true, nil
}

func (h *RedisHotTier) Items(ctx context.Context, networkID string) ([]Item, error) {
	set := idSetKey()
	if networkID != "" {
		set = networkSetKey(networkID)
	}
	ids, err := h.client.SMembers(ctx, set).Result()
	if err != nil {
		return nil, hotErr("scan", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.SliceCmd, len(ids))
	_, err = h.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HMGet(ctx, itemKey(id), "data", "access_count", "last_accessed", "tier_hits")
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, hotErr("scan", err)
	}

	out := make([]Item, 0, len(ids))
	var dangling []string
	for i, cmd := range cmds {
		vals := cmd.Val()
		data, _ := vals[0].(string)
		if data == "" {
			// Expired by TTL; the index entry outlived it.
			dangling = append(dangling, ids[i])
			continue
		}
		ac, _ := vals[1].(string)
		la, _ := vals[2].(string)
		th, _ := vals[3].(string)
		it, err := decodeHot(data, ac, la, th)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if len(dangling) > 0 {
		members := make([]interface{}, len(dangling))
		for i, id := range dangling {
			members[i] = id
		}
		// Best effort. Entries found through the global set stay in their
		// network set until that network is scanned.
		h.client.SRem(ctx, idSetKey(), members...)
		if networkID != "" {
			h.client.SRem(ctx, set, members...)
		}
	}
	return out, nil
}

func (h *RedisHotTier) Delete(ctx context.Context, id string) (bool, error) {
	n, err := deleteScript.Run(ctx, h.client, []string{itemKey(id), idSetKey()}, id, networkSetPrefix()).Int()
	if err != nil {
		return false, hotErr("delete", err)
	}
	return n > 0, nil
}

func (h *RedisHotTier) ReleaseIfIdle(ctx context.Context, id string, lastAccessed time.Time) (bool, error) {
	n, err := releaseIfIdleScript.Run(ctx, h.client, []string{itemKey(id), idSetKey()}, millis(lastAccessed), networkSetPrefix()).Int()
	if err != nil {
		return false, hotErr("release", err)
	}
	return n == 1, nil
}

func (h *RedisHotTier) DeleteNetwork(ctx context.Context, networkID string) (int, error) {
	set := networkSetKey(networkID)
	ids, err := h.client.SMembers(ctx, set).Result()
	if err != nil {
		return 0, hotErr("clear", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	cmds := make([]*redis.IntCmd, len(ids))
	_, err = h.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			cmds[i] = p.Del(ctx, itemKey(id))
			members[i] = id
		}
		p.SRem(ctx, idSetKey(), members...)
		p.Del(ctx, set)
		return nil
	})
	if err != nil {
		return 0, hotErr("clear", err)
	}
	n := 0
	for _, c := range cmds {
		n += int(c.Val())
	}
	return n, nil
}

func decodeHot(data, accessCount, lastAccessed, tierHits string) (Item, error) {
	var it Item
	if err := json.Unmarshal([]byte(data), &it); err != nil {
		return Item{}, errors.New(errors.CodeMemoryError, "decode memory item", err)
	}
	it.AccessCount, _ = strconv.ParseInt(accessCount, 10, 64)
	it.TierHits, _ = strconv.ParseInt(tierHits, 10, 64)
	if ms, err := strconv.ParseInt(lastAccessed, 10, 64); err == nil {
		it.LastAccessed = fromMillis(ms)
	}
	it.Tier = TierHot
	return it, nil
}

var _ HotTier = (*RedisHotTier)(nil)
