// SPDX-License-Identifier: Apache-2.0

// Package pubsub delivers orchestrator lifecycle events to whatever transport
// listens for them: an in-process fan-out, Redis PUBLISH or a Kafka topic.
package pubsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/telemetry"
)

// Publisher sends a payload on a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// Message is a payload received on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Decode unmarshals the payload as a lifecycle event.
func (m Message) Decode() (core.Event, error) {
	var e core.Event
	err := json.Unmarshal(m.Payload, &e)
	return e, err
}

// Emitter adapts a Publisher to core.EventEmitter. Each event is encoded
// as JSON and published on its task and network channels. Publish errors
// are logged and never reach the caller.
type Emitter struct {
	pub     Publisher
	timeout time.Duration
	logger  *slog.Logger
}

// NewEmitter wraps pub. A zero timeout defaults to two seconds per event.
func NewEmitter(pub Publisher, timeout time.Duration, logger *slog.Logger) *Emitter {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Emitter{pub: pub, timeout: timeout, logger: telemetry.Component(logger, "pubsub")}
}

// Emit implements core.EventEmitter.
func (e *Emitter) Emit(ctx context.Context, event core.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Warn("pubsub.encode.failed", slog.String("event", string(event.Type)), slog.String("error", err.Error()))
		return
	}
	// Events outlive a canceled request; only the publish itself is bounded.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	for _, ch := range event.Channels() {
		if err := e.pub.Publish(ctx, ch, payload); err != nil {
			e.logger.Warn("pubsub.publish.failed",
				slog.String("channel", ch),
				slog.String("event", string(event.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

var _ core.EventEmitter = (*Emitter)(nil)
