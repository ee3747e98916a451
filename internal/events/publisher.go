package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventType names a chat domain event
type EventType string

const (
	EventMessageSent    EventType = "message.sent"
	EventMessageDeleted EventType = "message.deleted"
	EventMessagesSeen   EventType = "message.seen"
)

// ChatEvent is emitted after a chat write has been committed. Downstream
// consumers (push notifications, email digests) key on ReceiverID.
type ChatEvent struct {
	Type        EventType `json:"type"`
	MessageID   string    `json:"messageId,omitempty"`
	SenderID    string    `json:"senderId"`
	ReceiverID  string    `json:"receiverId"`
	MessageType string    `json:"messageType,omitempty"`
	Preview     string    `json:"preview,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher delivers chat events to other services
type Publisher interface {
	Publish(ctx context.Context, ev ChatEvent) error
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, ChatEvent) error { return nil }
func (Nop) Close() error                             { return nil }

// KafkaPublisher writes events to a Kafka topic keyed by receiver id, so a
// consumer sees one user's events in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		// best effort: delivery errors are not reported back
		Async: true,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev ChatEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ReceiverID),
		Value: b,
		Time:  ev.Timestamp,
	})
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
