// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"sync"
	"time"
)

type memValue struct {
	data      []byte
	set       map[string]struct{}
	expiresAt time.Time
}

func (v memValue) expired(now time.Time) bool {
	return !v.expiresAt.IsZero() && !now.Before(v.expiresAt)
}

// Memory is a process-local KV for tests and single-node deployments.
type Memory struct {
	mu    sync.Mutex
	clock func() time.Time
	data  map[string]memValue
}

// NewMemory creates an empty store. A nil clock uses time.Now.
func NewMemory(clock func() time.Time) *Memory {
	if clock == nil {
		clock = time.Now
	}
	return &Memory{clock: clock, data: make(map[string]memValue)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.live(key)
	if !ok || v.set != nil {
		return nil, false, nil
	}
	return append([]byte(nil), v.data...), true, nil
}

func (m *Memory) MGet(_ context.Context, keys []string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.live(k); ok && v.set == nil {
			out[k] = append([]byte(nil), v.data...)
		}
	}
	return out, nil
}

func (m *Memory) PutMany(_ context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	for _, e := range entries {
		m.data[e.Key] = memValue{data: append([]byte(nil), e.Value...), expiresAt: expiry(now, e.TTL)}
	}
	return nil
}

func (m *Memory) CompareAndPut(_ context.Context, key string, old []byte, entries ...Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.live(key)
	if !ok || v.set != nil || !bytes.Equal(v.data, old) {
		return false, nil
	}
	now := m.clock()
	for _, e := range entries {
		m.data[e.Key] = memValue{data: append([]byte(nil), e.Value...), expiresAt: expiry(now, e.TTL)}
	}
	return true, nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *Memory) SetAdd(_ context.Context, key string, ttl time.Duration, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.live(key)
	if !ok || v.set == nil {
		v = memValue{set: make(map[string]struct{})}
	}
	for _, mem := range members {
		v.set[mem] = struct{}{}
	}
	v.expiresAt = expiry(m.clock(), ttl)
	m.data[key] = v
	return nil
}

func (m *Memory) SetRemove(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.live(key)
	if !ok || v.set == nil {
		return nil
	}
	for _, mem := range members {
		delete(v.set, mem)
	}
	return nil
}

func (m *Memory) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.live(key)
	if !ok || v.set == nil {
		return nil, nil
	}
	out := make([]string, 0, len(v.set))
	for mem := range v.set {
		out = append(out, mem)
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// live returns the value at key, dropping it if expired. Callers hold m.mu.
func (m *Memory) live(key string) (memValue, bool) {
	v, ok := m.data[key]
	if !ok {
		return memValue{}, false
	}
	if v.expired(m.clock()) {
		delete(m.data, key)
		return memValue{}, false
	}
	return v, true
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

var _ KV = (*Memory)(nil)
