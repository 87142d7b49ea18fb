// Package kafka streams decision events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"riskgate/decision-api/internal/domain"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "risk.decisions"

const writeTimeout = 2 * time.Second

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes one message per DecisionEvent, keyed by transaction id so
// every decision for a transaction lands on the same partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates an asynchronous publisher for topic on brokers.
// Delivery errors are reported through the logger.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "kafka", "topic", topic)

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
		Completion: func(messages []kafkago.Message, err error) {
			if err != nil {
				logger.Warn("delivery failed", "messages", len(messages), "error", err)
			}
		},
	}
	return newPublisher(w, topic, logger)
}

func newPublisher(w messageWriter, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{writer: w, topic: topic, logger: logger}
}

// Publish queues the event. It never blocks on the broker.
func (p *Publisher) Publish(event domain.DecisionEvent) {
	msg, err := encode(event)
	if err != nil {
		p.logger.Error("failed to marshal event", "event_id", event.EventID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("publish failed", "event_id", event.EventID, "error", err)
		return
	}
	p.logger.Debug("event queued",
		"event_id", event.EventID,
		"transaction_id", event.TransactionID,
		"decision", event.Result.Decision,
	)
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("closing kafka writer for %s: %w", p.topic, err)
	}
	return nil
}

func encode(event domain.DecisionEvent) (kafkago.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(event.TransactionID, 10)),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Event)},
			{Key: "decision", Value: []byte(event.Result.Decision)},
		},
	}, nil
}
