package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hkshop/storefront/models"
	awspkg "github.com/hkshop/storefront/pkg/aws"
	"github.com/segmentio/kafka-go"
)

// EventPublisher announces ledger state changes to downstream consumers.
// Delivery is best effort; callers log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, event models.OrderEvent) error
}

// MetricsRecorder is satisfied by *aws.MetricsClient.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, models.OrderEvent) error { return nil }

type noopMetrics struct{}

func (noopMetrics) RecordCount(context.Context, string, map[string]string) error { return nil }

// SNSEventPublisher publishes events to a topic with an event_type
// attribute for subscription filters.
type SNSEventPublisher struct {
	sns      awspkg.SNSPublisher
	topicArn string
}

func NewSNSEventPublisher(sns awspkg.SNSPublisher, topicArn string) *SNSEventPublisher {
	return &SNSEventPublisher{sns: sns, topicArn: topicArn}
}

func (p *SNSEventPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return p.sns.Publish(ctx, p.topicArn, payload, map[string]string{"event_type": event.Type})
}

// KafkaMessageWriter is the part of *kafka.Writer the publisher uses.
type KafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventPublisher writes events keyed by order id so every event for
// one order lands on the same partition.
type KafkaEventPublisher struct {
	writer KafkaMessageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewKafkaEventPublisher(writer KafkaMessageWriter) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
		Time: event.Timestamp,
	})
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
