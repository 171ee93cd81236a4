// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"
	"time"
)

// HotTier is the low-latency, TTL-bound region of the store. Every write and
// every Touch refreshes the item's expiry.
type HotTier interface {
	// Put writes it and refreshes its TTL.
	Put(ctx context.Context, it Item) error
	// Touch records one read of id at now and returns the updated item.
	// The increment is atomic with respect to concurrent callers.
	Touch(ctx context.Context, id string, now time.Time) (Item, bool, error)
	// Items returns the live items of a network without touching them.
	// An empty networkID returns every live item.
	Items(ctx context.Context, networkID string) ([]Item, error)
	// Delete removes id and reports whether it was present.
	Delete(ctx context.Context, id string) (bool, error)
	// ReleaseIfIdle removes id unless it was read after lastAccessed. It
	// reports true when no hot copy remains, including when id had already
	// expired.
	ReleaseIfIdle(ctx context.Context, id string, lastAccessed time.Time) (bool, error)
	// DeleteNetwork removes every item of a network.
	DeleteNetwork(ctx context.Context, networkID string) (int, error)
}

type hotEntry struct {
	item      Item
	expiresAt time.Time
}

// InMemoryHotTier is a process-local HotTier with lazy expiry.
type InMemoryHotTier struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock func() time.Time
	items map[string]hotEntry
}

// NewInMemoryHotTier creates a hot tier whose entries expire ttl after their
// last write or read. A nil clock uses time.Now.
func NewInMemoryHotTier(ttl time.Duration, clock func() time.Time) *InMemoryHotTier {
	if clock == nil {
		clock = time.Now
	}
	return &InMemoryHotTier{ttl: ttl, clock: clock, items: make(map[string]hotEntry)}
}

func (h *InMemoryHotTier) Put(_ context.Context, it Item) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	it.Tier = TierHot
	h.items[it.ID] = hotEntry{item: it, expiresAt: h.clock().Add(h.ttl)}
	return nil
}

func (h *InMemoryHotTier) Touch(_ context.Context, id string, now time.Time) (Item, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.live(id)
	if !ok {
		return Item{}, false, nil
	}
	e.item = e.item.touched(now)
	e.expiresAt = h.clock().Add(h.ttl)
	h.items[id] = e
	return e.item, true, nil
}

func (h *InMemoryHotTier) Items(_ context.Context, networkID string) ([]Item, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Item
	for id := range h.items {
		e, ok := h.live(id)
		if !ok {
			continue
		}
		if networkID == "" || e.item.NetworkID == networkID {
			out = append(out, e.item)
		}
	}
	return out, nil
}

func (h *InMemoryHotTier) Delete(_ context.Context, id string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.live(id)
	delete(h.items, id)
	return ok, nil
}

func (h *InMemoryHotTier) ReleaseIfIdle(_ context.Context, id string, lastAccessed time.Time) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.live(id)
	if !ok {
		return true, nil
	}
	if e.item.LastAccessed.After(lastAccessed) {
		return false, nil
	}
	delete(h.items, id)
	return true, nil
}

func (h *InMemoryHotTier) DeleteNetwork(_ context.Context, networkID string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, e := range h.items {
		if e.item.NetworkID == networkID {
			delete(h.items, id)
			n++
		}
	}
	return n, nil
}

// live returns the entry for id, dropping it if expired. Callers hold h.mu.
func (h *InMemoryHotTier) live(id string) (hotEntry, bool) {
	e, ok := h.items[id]
	if !ok {
		return hotEntry{}, false
	}
	if !h.clock().Before(e.expiresAt) {
		delete(h.items, id)
		return hotEntry{}, false
	}
	return e, true
}

var _ HotTier = (*InMemoryHotTier)(nil)
