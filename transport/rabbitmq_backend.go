package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQBackend is a BackendPublisher (and consumer) backed by a
// RabbitMQ topic exchange. Each topic name doubles as the routing key
// and, for consumers, the declared queue name bound to that key.
type RabbitMQBackend struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
	logger   *slog.Logger
}

// NewRabbitMQBackend dials url, opens a channel, and declares a durable
// topic exchange to publish onto.
func NewRabbitMQBackend(url, exchange string, logger *slog.Logger) (*RabbitMQBackend, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("transport: dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("transport: open rabbitmq channel: %w", err)
	}

	err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("transport: declare exchange %s: %w", exchange, err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &RabbitMQBackend{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// Publish implements BackendPublisher.
func (b *RabbitMQBackend) Publish(ctx context.Context, topic string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.ch.PublishWithContext(ctx, b.exchange, topic, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("transport: publish to %s: %w", topic, err)
	}
	return nil
}

// Consume declares and binds the queue for topic, then delivers messages
// to handle until ctx is cancelled. Messages are acked only once handle
// returns nil, so a failing handler leaves the message for redelivery.
func (b *RabbitMQBackend) Consume(ctx context.Context, topic string, handle func([]byte) error) error {
	b.mu.Lock()
	_, err := b.ch.QueueDeclare(topic, true, false, false, false, nil)
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("transport: declare queue %s: %w", topic, err)
	}
	err = b.ch.QueueBind(topic, topic, b.exchange, false, nil)
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("transport: bind queue %s: %w", topic, err)
	}
	deliveries, err := b.ch.Consume(topic, "", false, false, false, false, nil)
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("transport: consume %s: %w", topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("transport: rabbitmq delivery channel closed for %s", topic)
			}
			if err := handle(d.Body); err != nil {
				b.logger.Warn("bus handler failed, nacking for redelivery", "topic", topic, "error", err)
				_ = d.Nack(false, true)
				continue
			}
			if err := d.Ack(false); err != nil {
				b.logger.Error("rabbitmq ack failed", "topic", topic, "error", err)
			}
		}
	}
}

// Close tears down the channel and connection.
func (b *RabbitMQBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
