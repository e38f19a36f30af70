package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka.
// Topic выбирается по типу агрегата; fallbackTopic получает всё остальное.
type OutboxTopicPublisher struct {
	producer      *Producer
	fallbackTopic string
	// fixedTopic, если задан, отменяет выбор topic по агрегату.
	fixedTopic string
}

// Envelope: обёртка outbox-сообщения, в которой оно уходит в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, fallbackTopic string) domain.OutboxPublisher {
	if fallbackTopic == "" {
		fallbackTopic = TopicTransactions
	}
	return &OutboxTopicPublisher{
		producer:      producer,
		fallbackTopic: fallbackTopic,
	}
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	topic := p.fixedTopic
	if topic == "" {
		topic = TopicForAggregate(event.AggregateType, p.fallbackTopic)
	}
	return p.producer.PublishEvent(ctx, topic, key, envelope, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
	})
}

// NewDLQPublisher создаёт паблишер, отправляющий все сообщения в TopicDeadLetterQueue.
func NewDLQPublisher(producer *Producer) domain.OutboxPublisher {
	return &OutboxTopicPublisher{producer: producer, fixedTopic: TopicDeadLetterQueue}
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
