// Package publish announces stored health records to downstream consumers.
// Notifications are best effort: the store is the source of truth and a
// failed publish never fails an ingest.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/sakif/garmin-mcp/internal/model"
)

const (
	DefaultTopic = "garmin.health_record.upserted"

	// HeaderDeliveryID carries the webhook delivery that produced the upsert.
	HeaderDeliveryID = "delivery-id"
)

// RecordUpserted is the JSON body of each notification.
type RecordUpserted struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Day        string    `json:"day"`
	UpdatedAt  time.Time `json:"updated_at"`
	DeliveryID string    `json:"delivery_id,omitempty"`
}

// Publisher is notified after every successful upsert.
type Publisher interface {
	RecordUpserted(ctx context.Context, rec *model.HealthRecord, deliveryID string) error
	Close() error
}

// Noop discards notifications. Used when no broker is configured.
type Noop struct{}

func (Noop) RecordUpserted(context.Context, *model.HealthRecord, string) error { return nil }
func (Noop) Close() error                                                    { return nil }

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per upsert, keyed by "<user>:<day>" so
// every update to a record lands on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
	newID  func() string
}

// NewKafkaPublisher builds a synchronous writer for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	})
}

func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, newID: uuid.NewString}
}

func (p *KafkaPublisher) RecordUpserted(ctx context.Context, rec *model.HealthRecord, deliveryID string) error {
	body, err := json.Marshal(RecordUpserted{
		EventID:    p.newID(),
		UserID:     rec.UserID,
		Day:        rec.Day,
		UpdatedAt:  rec.UpdatedAt,
		DeliveryID: deliveryID,
	})
	if err != nil {
		return fmt.Errorf("publish: encoding notification for %s: %w", rec.Key(), err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.UserID + ":" + rec.Day),
		Value: body,
		Time:  rec.UpdatedAt,
	}
	if deliveryID != "" {
		msg.Headers = []kafka.Header{{Key: HeaderDeliveryID, Value: []byte(deliveryID)}}
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish: writing notification for %s: %w", rec.Key(), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
