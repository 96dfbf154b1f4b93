package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	messages []kafka.Message
	deadline bool
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, f.deadline = ctx.Deadline()
	f.messages = append(f.messages, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	writer := &fakeWriter{}
	pub := newKafkaPublisher(writer, nil)

	now := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	evt, err := NewEvent(TypeUserRegistered, "user-1", map[string]string{"mobileNumber": "9876543210"}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "user-1" {
		t.Fatalf("expected key user-1, got %s", msg.Key)
	}
	if !writer.deadline {
		t.Fatalf("expected publish to carry a deadline")
	}

	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if decoded.Type != TypeUserRegistered || decoded.ID == "" {
		t.Fatalf("unexpected event: %+v", decoded)
	}
	if string(decoded.Payload) != `{"mobileNumber":"9876543210"}` {
		t.Fatalf("unexpected payload: %s", decoded.Payload)
	}
}

func TestKafkaPublisherWrapsWriterError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	pub := newKafkaPublisher(writer, nil)

	evt, _ := NewEvent(TypeCartCheckedOut, "user-1", struct{}{}, time.Now())
	if err := pub.Publish(context.Background(), evt); err == nil {
		t.Fatalf("expected error")
	}
	if err := pub.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestNewKafkaPublisherValidatesConfig(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaConfig{Topic: "t"}, nil); err == nil {
		t.Fatalf("expected error for missing brokers")
	}
	if _, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil); err == nil {
		t.Fatalf("expected error for missing topic")
	}
	pub, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Username: "u", UseTLS: true}, nil)
	if err != nil || pub == nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNilPublisherIsNoop(t *testing.T) {
	var pub *KafkaPublisher
	if err := pub.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (NoopPublisher{}).Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
