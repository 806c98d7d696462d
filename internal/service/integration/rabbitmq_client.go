package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

// EventPublisher emits domain events. Publishing is best effort for callers.
type EventPublisher interface {
	Publish(ctx context.Context, event *models.DomainEvent) error
	Close() error
}

type RabbitMQClient interface {
	EventPublisher
	Channel() *amqp.Channel
	Queue() string
}

type rabbitMQClient struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	logger   zerolog.Logger
}

// NotificationBindings are the event types the notification queue receives.
var NotificationBindings = []string{
	models.EventMessageSent,
	models.EventAssignmentScored,
	models.EventCertificateIssued,
	models.EventSessionStarted,
}

func NewRabbitMQClient(url, exchange, queueName string, bindings []string, logger zerolog.Logger) (RabbitMQClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range bindings {
		if err := channel.QueueBind(queue.Name, key, exchange, false, nil); err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}

	logger.Info().
		Str("exchange", exchange).
		Str("queue", queue.Name).
		Strs("bindings", bindings).
		Msg("Connected to RabbitMQ")

	return &rabbitMQClient{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		queue:    queue.Name,
		logger:   logger,
	}, nil
}

func (c *rabbitMQClient) Publish(ctx context.Context, event *models.DomainEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		publishCtx,
		c.exchange, // exchange
		event.Type, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	c.logger.Debug().
		Str("type", event.Type).
		Str("user_id", event.UserID).
		Msg("Domain event published")

	return nil
}

func (c *rabbitMQClient) Channel() *amqp.Channel {
	return c.channel
}

func (c *rabbitMQClient) Queue() string {
	return c.queue
}

func (c *rabbitMQClient) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Failed to close RabbitMQ channel")
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	return nil
}

// EventHandler consumes one domain event.
type EventHandler func(ctx context.Context, event *models.DomainEvent) error

type localPublisher struct {
	handler EventHandler
	logger  zerolog.Logger
}

// NewLocalPublisher hands events straight to an in-process handler. It stands in for the broker
// when RabbitMQ is unreachable at startup.
func NewLocalPublisher(handler EventHandler, logger zerolog.Logger) EventPublisher {
	return &localPublisher{handler: handler, logger: logger}
}

func (p *localPublisher) Publish(ctx context.Context, event *models.DomainEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	if p.handler == nil {
		p.logger.Debug().Str("type", event.Type).Msg("No event handler, event dropped")
		return nil
	}
	return p.handler(ctx, event)
}

func (p *localPublisher) Close() error {
	return nil
}
