package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/pkg/circuitbreaker"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher writes lifecycle events to a topic keyed by consultation id,
// so all events of one consultation land on the same partition in order.
// A circuit breaker fed by delivery results sheds events while the brokers
// are down instead of piling them into the writer.
type KafkaPublisher struct {
	writer  *kafka.Writer
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.SugaredLogger) *KafkaPublisher {
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("Lifecycle event publisher circuit changed", "from", from, "to", to)
	})

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			breaker.Record(err)
			if err != nil {
				logger.Warnw("Failed to deliver lifecycle events",
					"count", len(messages),
					"error", err,
				)
			}
		},
	}

	logger.Infow("Kafka publisher configured", "brokers", brokers, "topic", topic)
	return &KafkaPublisher{writer: writer, breaker: breaker, logger: logger}
}

// Publish enqueues the event; delivery errors surface in the completion log.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := p.breaker.Allow(); err != nil {
		return fmt.Errorf("dropping %s event: %w", event.Type, err)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.breaker.Record(err)
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeEvent(event domain.LifecycleEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.ConsultationID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}
