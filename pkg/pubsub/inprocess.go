// SPDX-License-Identifier: Apache-2.0

package pubsub

import (
	"context"
	"sync"
)

// InProcess fans messages out to local subscribers. A subscriber that falls
// behind loses messages instead of blocking publishers.
type InProcess struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Message
	next   int
	buffer int
	closed bool
}

// NewInProcess creates a bus whose subscriptions buffer up to buffer messages.
func NewInProcess(buffer int) *InProcess {
	if buffer <= 0 {
		buffer = 64
	}
	return &InProcess{subs: make(map[string]map[int]chan Message), buffer: buffer}
}

// Publish implements Publisher.
func (b *InProcess) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	msg := Message{Channel: channel, Payload: payload}
	for _, ch := range b.subs[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel receiving messages published on channel and
// a function that ends the subscription.
func (b *InProcess) Subscribe(channel string) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Message, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]chan Message)
	}
	b.subs[channel][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[channel][id]; ok {
				delete(b.subs[channel], id)
				close(sub)
			}
		})
	}
}

// Close ends every subscription.
func (b *InProcess) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
	}
	return nil
}

var _ Publisher = (*InProcess)(nil)
