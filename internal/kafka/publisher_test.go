package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/decision-api/internal/domain"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafkago.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvent() domain.DecisionEvent {
	return domain.DecisionEvent{
		EventID:       "5f0c6a52-7c1e-4d4b-9f65-2b8c1a9e0d11",
		Event:         domain.EventDecisionMade,
		TransactionID: 4242,
		Result: domain.ScoreResult{
			Decision:  domain.DecisionRejected,
			RiskScore: 100,
			Reasons:   []string{"hard_block:chargebacks>=2+ip_high"},
		},
		OccurredAt: time.Date(2026, 3, 1, 22, 15, 0, 0, time.UTC),
	}
}

func TestPublish_WritesKeyedJSONMessage(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, DefaultTopic, quiet())

	p.Publish(sampleEvent())

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "4242", string(msg.Key))
	assert.Equal(t, sampleEvent().OccurredAt, msg.Time)

	var got domain.DecisionEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, sampleEvent(), got)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, map[string]string{
		"event_type": domain.EventDecisionMade,
		"decision":   "REJECTED",
	}, headers)
}

func TestPublish_WriterErrorIsSwallowed(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newPublisher(w, DefaultTopic, quiet())

	assert.NotPanics(t, func() { p.Publish(sampleEvent()) })
	assert.Empty(t, w.messages)
}

func TestClose_ClosesWriter(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, DefaultTopic, quiet())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewPublisher_ConfiguresAsyncWriter(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092", "localhost:9093"}, "", quiet())

	w, ok := p.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, DefaultTopic, w.Topic)
	assert.True(t, w.Async)
	assert.Equal(t, "localhost:9092,localhost:9093", w.Addr.String())
	assert.NoError(t, w.Close())
}
