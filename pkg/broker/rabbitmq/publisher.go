// Package rabbitmq publishes outbox messages to a durable exchange and waits
// for the broker's publisher confirm.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/co2market/auth-service/pkg/broker"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrPublishNacked  = errors.New("rabbitmq: publish nacked by broker")
	ErrConfirmTimeout = errors.New("rabbitmq: timed out waiting for publish confirm")
	ErrChannelClosed  = errors.New("rabbitmq: channel closed")
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a channel and returns the connection that owns it.
type Dialer func() (Channel, io.Closer, error)

// DialURL dials url and opens one channel.
func DialURL(url string) Dialer {
	return func() (Channel, io.Closer, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
		}
		return ch, conn, nil
	}
}

// Publisher is a broker.Publisher over a single confirm-mode channel.
// Publishes are serialized so each confirm matches the preceding publish.
type Publisher struct {
	dial           Dialer
	confirmTimeout time.Duration
	exchangeKind   string
	log            *zap.Logger

	mu       sync.Mutex
	ch       Channel
	conn     io.Closer
	confirms chan amqp.Confirmation
	closedCh chan *amqp.Error
	declared map[string]struct{}
	closed   bool
}

func newPublisher(dial Dialer, cfg Config, log *zap.Logger) *Publisher {
	return &Publisher{
		dial:           dial,
		confirmTimeout: cfg.ConfirmTimeout,
		exchangeKind:   cfg.ExchangeKind,
		log:            log,
		declared:       make(map[string]struct{}),
	}
}

// Connect opens the channel eagerly so startup fails fast.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureChannel()
}

func (p *Publisher) ensureChannel() error {
	if p.closed {
		return ErrChannelClosed
	}
	if p.ch != nil {
		select {
		case <-p.closedCh:
			p.log.Warn("rabbitmq channel closed, reconnecting")
			p.reset()
		default:
			return nil
		}
	}

	ch, conn, err := p.dial()
	if err != nil {
		return err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	p.ch = ch
	p.conn = conn
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.closedCh = ch.NotifyClose(make(chan *amqp.Error, 1))
	p.declared = make(map[string]struct{})
	p.log.Info("rabbitmq channel opened")
	return nil
}

// reset drops the current channel. A pending confirm would desynchronize the
// next publish, so the channel is never reused after a failed wait.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn, p.confirms, p.closedCh = nil, nil, nil, nil
}

func (p *Publisher) ensureExchange(name string) error {
	if _, ok := p.declared[name]; ok {
		return nil
	}
	if err := p.ch.ExchangeDeclare(name, p.exchangeKind, true, false, false, false, nil); err != nil {
		p.reset()
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	p.declared[name] = struct{}{}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, msg broker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(); err != nil {
		return err
	}
	if err := p.ensureExchange(msg.Topic); err != nil {
		return err
	}

	headers := make(amqp.Table, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	err := p.ch.PublishWithContext(ctx, msg.Topic, msg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID,
		Type:         msg.Type,
		Timestamp:    msg.Timestamp,
		Headers:      headers,
		Body:         msg.Body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}

	if err := p.waitForConfirm(ctx); err != nil {
		if !errors.Is(err, ErrPublishNacked) {
			p.reset()
		}
		return err
	}
	return nil
}

func (p *Publisher) waitForConfirm(ctx context.Context) error {
	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()

	select {
	case c, ok := <-p.confirms:
		if !ok {
			return ErrChannelClosed
		}
		if !c.Ack {
			return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, c.DeliveryTag)
		}
		return nil
	case amqpErr := <-p.closedCh:
		if amqpErr != nil {
			return fmt.Errorf("%w: %s", ErrChannelClosed, amqpErr.Error())
		}
		return ErrChannelClosed
	case <-timer.C:
		return ErrConfirmTimeout
	case <-ctx.Done():
		return fmt.Errorf("waiting for publish confirm: %w", ctx.Err())
	}
}

// Close closes the channel and connection. Publish fails afterwards.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	p.log.Info("rabbitmq publisher closed")
	return nil
}
