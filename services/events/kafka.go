// Package eventsvc publishes learning events to Kafka, to the application log, or to memory.
package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/learnwise/backend/core"
)

const defaultTopic = "learnwise.events"

// KafkaPublisher writes each event as a JSON message keyed by the user ID,
// so that the events of a user stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

var _ core.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(conf *core.Config) *KafkaPublisher {
	topic := conf.Kafka.Topic
	if topic == "" {
		topic = defaultTopic
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(conf.Kafka.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func encode(events []core.Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		value, err := json.Marshal(evt)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding %s event", evt.Type)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.UserID),
			Value: value,
			Time:  evt.OccurredAt,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(evt.Type)},
			},
		})
	}
	return msgs, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...core.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := encode(events)
	if err != nil {
		return err
	}
	return errors.Wrap(p.writer.WriteMessages(ctx, msgs...), "writing events")
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
