// SPDX-License-Identifier: Apache-2.0

package pubsub

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jllopis/agentnet/pkg/errors"
)

// channelHeader carries the logical channel on each Kafka record.
const channelHeader = "agentnet-channel"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes events to a single topic keyed by channel, so all events of
// one task land on the same partition in order.
type Kafka struct {
	w messageWriter
}

// NewKafka creates a publisher writing to topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// Publish implements Publisher.
func (k *Kafka) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := k.w.WriteMessages(ctx, kafkaMessage(channel, payload)); err != nil {
		return errors.New(errors.CodeStoreError, "kafka write", err).WithRecoverable(true)
	}
	return nil
}

// Close flushes pending writes.
func (k *Kafka) Close() error { return k.w.Close() }

func kafkaMessage(channel string, payload []byte) kafka.Message {
	return kafka.Message{
		Key:     []byte(channel),
		Value:   payload,
		Headers: []kafka.Header{{Key: channelHeader, Value: []byte(channel)}},
		Time:    time.Now(),
	}
}

var _ Publisher = (*Kafka)(nil)
