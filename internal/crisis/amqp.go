package crisis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const crisisExchange = "crisis-alerts"

var _ Notifier = (*AMQPNotifier)(nil)

// AMQPNotifier publishes alert events to a durable topic exchange. An empty
// URI yields a disabled notifier so environments without a broker keep
// working.
type AMQPNotifier struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	enabled bool
}

// NewAMQPNotifier connects to the broker and declares the crisis exchange.
func NewAMQPNotifier(uri string) (*AMQPNotifier, error) {
	if uri == "" {
		return &AMQPNotifier{enabled: false}, nil
	}
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(
		crisisExchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPNotifier{conn: conn, channel: channel, enabled: true}, nil
}

// Emit publishes one alert event. The routing key is the event name.
func (n *AMQPNotifier) Emit(ctx context.Context, event string, payload map[string]any) error {
	if !n.enabled {
		return nil
	}
	body, err := json.Marshal(map[string]any{
		"event":     event,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"payload":   payload,
	})
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.channel.PublishWithContext(ctx,
		crisisExchange,
		event, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
}

// Close releases the channel and connection.
func (n *AMQPNotifier) Close() error {
	if !n.enabled {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.channel != nil {
		_ = n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
