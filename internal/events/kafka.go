package events

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic per event family, named
// "<prefix>.<family>" (gmarket.order, gmarket.payment, gmarket.shipment).
// Messages are keyed by order id and hashed to partitions, so all events of
// one order are read back in publish order.
type KafkaPublisher struct {
	w      messageWriter
	prefix string
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher returns a publisher writing to brokers.
func NewKafkaPublisher(brokers []string, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		prefix: topicPrefix,
	}
}

// Topic returns the topic events of type t are written to.
func (p *KafkaPublisher) Topic(t Type) string {
	return p.prefix + "." + t.Family()
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		msgs[i] = kafka.Message{
			Topic: p.Topic(ev.Type),
			Key:   []byte(ev.Key),
			Value: ev.Encode(),
			Time:  ev.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(ev.Type)},
				{Key: "event-id", Value: []byte(ev.ID)},
			},
		}
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrap(err, "write kafka messages")
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
