// Package kafka publishes outbox messages with confluent-kafka-go and waits
// for each delivery report.
package kafka

import (
	"context"
	"fmt"

	"github.com/co2market/auth-service/pkg/broker"
	confluent "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Producer is the part of *confluent.Producer the publisher uses.
type Producer interface {
	Produce(message *confluent.Message, deliveryChan chan confluent.Event) error
	Flush(timeoutMs int) int
	Close()
}

// Publisher is a broker.Publisher. The routing key becomes the message key,
// so events of one routing key share a partition.
type Publisher struct {
	producer Producer
}

func newPublisher(p Producer) *Publisher {
	return &Publisher{producer: p}
}

func (p *Publisher) Publish(ctx context.Context, msg broker.Message) error {
	topic := msg.Topic
	headers := make([]confluent.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, confluent.Header{Key: k, Value: []byte(v)})
	}

	delivery := make(chan confluent.Event, 1)
	err := p.producer.Produce(&confluent.Message{
		TopicPartition: confluent.TopicPartition{Topic: &topic, Partition: confluent.PartitionAny},
		Key:            []byte(msg.RoutingKey),
		Value:          msg.Body,
		Headers:        headers,
		Timestamp:      msg.Timestamp,
		Opaque:         msg.MessageID,
	}, delivery)
	if err != nil {
		return fmt.Errorf("failed to produce message to topic %s: %w", topic, err)
	}

	select {
	case e := <-delivery:
		switch ev := e.(type) {
		case *confluent.Message:
			if ev.TopicPartition.Error != nil {
				return fmt.Errorf("kafka delivery failed: %w", ev.TopicPartition.Error)
			}
			return nil
		case confluent.Error:
			return fmt.Errorf("kafka delivery failed: %w", ev)
		default:
			return fmt.Errorf("unexpected kafka delivery event %T", e)
		}
	case <-ctx.Done():
		// librdkafka still owns the message; a late success makes this a
		// duplicate on the next attempt.
		return fmt.Errorf("waiting for kafka delivery report: %w", ctx.Err())
	}
}
