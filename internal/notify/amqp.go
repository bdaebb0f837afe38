package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// amqpChannel is the slice of *amqp.Channel the notifier uses, kept as an
// interface so tests can substitute a fake.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes events to a RabbitMQ exchange. Messages are marked
// persistent so a broker restart does not drop queued notifications.
type AMQPNotifier struct {
	config  AMQPConfig
	conn    *amqp.Connection
	channel amqpChannel
}

func NewAMQPNotifier(cfg AMQPConfig) *AMQPNotifier {
	return &AMQPNotifier{config: cfg}
}

// Connect dials the broker and opens a publishing channel. It must be called
// before Notify.
func (n *AMQPNotifier) Connect(ctx context.Context) error {
	conn, err := amqp.Dial(n.config.URL)
	if err != nil {
		return fmt.Errorf("amqp connect error: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel error: %w", err)
	}
	n.conn = conn
	n.channel = ch
	return nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, event Event) error {
	if n.channel == nil {
		return fmt.Errorf("amqp notifier is not connected")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.channel.PublishWithContext(
		ctx,
		n.config.Exchange,
		n.config.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         event.Type,
			Body:         data,
		},
	)
}

func (n *AMQPNotifier) Close() error {
	if n.channel != nil {
		if err := n.channel.Close(); err != nil {
			return err
		}
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
