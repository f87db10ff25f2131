// Package kafka relays fanout publishes across service instances.
// Every instance writes envelopes to one Kafka topic and consumes it
// with a unique group id, so each instance sees every publish and
// forwards it to its local hub.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Local is the in-process fanout the bridge feeds on the consuming
// side.
type Local interface {
	Publish(topic string, payload any)
}

// An envelope wraps a hub publish for the wire.
type envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// outboundBuffer is how many envelopes may queue for the broker before
// publishes get dropped.
const outboundBuffer = 1024

// Bridge is a Broadcaster that routes publishes through Kafka instead
// of the local hub directly. Callers never wait on the broker: Publish
// enqueues and a single writer goroutine drains the queue, so envelopes
// for one fanout topic reach the broker in publish order. Messages are
// keyed by fanout topic so one topic stays on one partition and the
// order survives consumption.
type Bridge struct {
	logger   *slog.Logger
	writer   *kafka.Writer
	reader   *kafka.Reader
	local    Local
	instance string

	out  chan kafka.Message
	quit chan struct{}
	once sync.Once

	// write is swapped out in tests.
	write func(ctx context.Context, msgs ...kafka.Message) error
}

func NewBridge(logger *slog.Logger, brokers []string, topic string, local Local) *Bridge {
	instance := uuid.NewString()
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	// A unique group per instance turns the topic into a broadcast:
	// every instance receives every envelope.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "chatwire-fanout-" + instance,
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
		MaxWait:     250 * time.Millisecond,
	})
	b := &Bridge{
		logger:   logger,
		writer:   writer,
		reader:   reader,
		local:    local,
		instance: instance,
		out:      make(chan kafka.Message, outboundBuffer),
		quit:     make(chan struct{}),
		write:    writer.WriteMessages,
	}
	go b.writeLoop()
	return b
}

// Publish enqueues the payload for the broker and returns immediately.
// A full queue drops the envelope, matching the best-effort fanout
// contract.
func (b *Bridge) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Could not marshal payload", "topic", topic, "error", err.Error())
		return
	}
	env, err := json.Marshal(envelope{Topic: topic, Payload: data})
	if err != nil {
		b.logger.Error("Could not marshal envelope", "topic", topic, "error", err.Error())
		return
	}
	msg := kafka.Message{
		Key:   []byte(topic),
		Value: env,
		Time:  time.Now(),
	}
	select {
	case b.out <- msg:
	case <-b.quit:
	default:
		b.logger.Warn("Outbound queue full, dropping publish", "topic", topic)
	}
}

// writeLoop is the only goroutine talking to the writer, keeping the
// broker writes in publish order.
func (b *Bridge) writeLoop() {
	for {
		select {
		case msg := <-b.out:
			if err := b.write(context.Background(), msg); err != nil {
				b.logger.Error("Could not write to kafka", "key", string(msg.Key), "error", err.Error())
			}
		case <-b.quit:
			return
		}
	}
}

// Run consumes envelopes and forwards them to the local hub until the
// context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		m, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		var env envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			b.logger.Error("Could not unmarshal envelope", "error", err.Error())
			continue
		}
		b.local.Publish(env.Topic, env.Payload)
	}
}

// Close stops the writer goroutine and releases the writer and reader.
func (b *Bridge) Close() error {
	b.once.Do(func() { close(b.quit) })
	werr := b.writer.Close()
	rerr := b.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
