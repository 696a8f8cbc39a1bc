// Package broker defines the publish primitive the outbox dispatcher hands
// events to. Drivers live in subpackages.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is one event ready for the bus.
type Message struct {
	// Topic is the exchange (rabbitmq), topic (kafka) or channel prefix (redis).
	Topic      string
	RoutingKey string
	// MessageID is the outbox event id; consumers dedupe on it.
	MessageID string
	Type      string
	Body      []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Publisher sends a message and returns once the broker has accepted it.
// An error means the message may or may not have been delivered.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg Message) error

func (f PublisherFunc) Publish(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Driver names a Publisher implementation.
type Driver string

const (
	DriverRabbitMQ Driver = "rabbitmq"
	DriverKafka    Driver = "kafka"
	DriverRedis    Driver = "redis"
)

// ParseDriver accepts a case-insensitive driver name; empty means rabbitmq.
func ParseDriver(s string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(s))) {
	case "", DriverRabbitMQ:
		return DriverRabbitMQ, nil
	case DriverKafka:
		return DriverKafka, nil
	case DriverRedis:
		return DriverRedis, nil
	default:
		return "", fmt.Errorf("unknown broker driver %q", s)
	}
}

// Standard header keys set on every published message.
const (
	HeaderEventID    = "event_id"
	HeaderEventType  = "event_type"
	HeaderRoutingKey = "routing_key"
)
