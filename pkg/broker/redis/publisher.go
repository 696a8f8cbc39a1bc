// Package redis publishes outbox messages on Redis pub/sub channels named
// "<topic>.<routing key>".
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/co2market/auth-service/pkg/broker"
	goredis "github.com/redis/go-redis/v9"
)

var ErrNoSubscribers = errors.New("redis: message had no subscribers")

// envelope carries what pub/sub has no room for.
type envelope struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	RoutingKey string            `json:"routing_key"`
	Timestamp  time.Time         `json:"timestamp"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       json.RawMessage   `json:"body"`
}

type Publisher struct {
	client             goredis.UniversalClient
	requireSubscribers bool
}

func newPublisher(client goredis.UniversalClient, requireSubscribers bool) *Publisher {
	return &Publisher{client: client, requireSubscribers: requireSubscribers}
}

// Channel returns the pub/sub channel for a message.
func Channel(topic, routingKey string) string {
	return topic + "." + routingKey
}

func (p *Publisher) Publish(ctx context.Context, msg broker.Message) error {
	data, err := json.Marshal(envelope{
		ID:         msg.MessageID,
		Type:       msg.Type,
		RoutingKey: msg.RoutingKey,
		Timestamp:  msg.Timestamp,
		Headers:    msg.Headers,
		Body:       msg.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode redis envelope: %w", err)
	}

	channel := Channel(msg.Topic, msg.RoutingKey)
	receivers, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	if receivers == 0 && p.requireSubscribers {
		return fmt.Errorf("%w: %s", ErrNoSubscribers, channel)
	}
	return nil
}

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
