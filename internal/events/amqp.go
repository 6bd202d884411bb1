package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"leadsync_backend/platform/config"
	"leadsync_backend/platform/logger"
)

// channelPublisher is the part of *amqp.Channel the forwarder uses.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPForwarder republishes lifecycle events to a topic exchange, using the
// event name as routing key.
type AMQPForwarder struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channelPublisher
	exchange string
	log      *logger.Logger
}

// NewAMQPForwarder dials the broker and declares the exchange.
func NewAMQPForwarder(cfg config.AMQPConfig, log *logger.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(cfg.GetAMQPURL())
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.GetAMQPExchange(), "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.GetAMQPExchange(), err)
	}
	return &AMQPForwarder{conn: conn, ch: ch, exchange: cfg.GetAMQPExchange(), log: log}, nil
}

// Register subscribes the forwarder to every lifecycle event.
func (f *AMQPForwarder) Register(bus Bus) {
	bus.Subscribe(LeadStatusChanged{}.EventName(), f)
	bus.Subscribe(ReminderSent{}.EventName(), f)
}

// Handle implements Handler.
func (f *AMQPForwarder) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.EventName(), err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	err = f.ch.PublishWithContext(ctx, f.exchange, routingKey(event), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt(),
		Type:         event.EventName(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.EventName(), err)
	}
	return nil
}

func routingKey(event Event) string {
	if e, ok := event.(LeadStatusChanged); ok {
		return event.EventName() + "." + strings.ReplaceAll(e.To.String(), "_", "-")
	}
	return event.EventName()
}

// Close releases the broker connection.
func (f *AMQPForwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
