// SPDX-License-Identifier: Apache-2.0

// Package store is the namespaced record store behind the orchestrator:
// opaque values under type-prefixed keys (network:<id>, task:<id>) with a
// per-key expiry, plus string sets for id lists.
package store

import (
	"context"
	"time"
)

// Entry is one value written by PutMany.
type Entry struct {
	Key   string
	Value []byte
	// TTL of zero means no expiry.
	TTL time.Duration
}

// KV is a key/value store with expiring keys and string sets.
type KV interface {
	// Get returns the value at key, reporting false when absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// MGet returns the values present among keys. Missing keys are omitted.
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	// PutMany writes every entry in one atomic step.
	PutMany(ctx context.Context, entries ...Entry) error
	// CompareAndPut writes entries only if the value at key still equals
	// old, all in one atomic step. It reports whether the write happened;
	// a missing key never matches.
	CompareAndPut(ctx context.Context, key string, old []byte, entries ...Entry) (bool, error)
	// Delete removes keys, including sets.
	Delete(ctx context.Context, keys ...string) error
	// SetAdd adds members to the set at key and refreshes its expiry.
	SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	// SetRemove removes members from the set at key.
	SetRemove(ctx context.Context, key string, members ...string) error
	// SetMembers returns the members of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}

// Put writes a single value.
func Put(ctx context.Context, kv KV, key string, value []byte, ttl time.Duration) error {
	return kv.PutMany(ctx, Entry{Key: key, Value: value, TTL: ttl})
}
