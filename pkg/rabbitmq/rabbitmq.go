package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kitchen-display/pkg/config"
	"kitchen-display/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// ChangesExchange carries row change events keyed <business>.<table>.<event>.
	ChangesExchange = "kds_changes_topic"
	ReconnInterval  = 5 * time.Second
)

// RabbitMQ holds one connection and channel and reconnects them on demand.
type RabbitMQ struct {
	cfg   *config.RabbitMQ
	mylog logger.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func URL(cfg *config.RabbitMQ) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.VHost)
}

// ConnectRabbitMQ dials the broker and declares the exchanges and queues used by the engine.
func ConnectRabbitMQ(cfg *config.RabbitMQ, notifyQueue string, mylog logger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{cfg: cfg, mylog: mylog}
	if err := r.connect(notifyQueue); err != nil {
		return nil, err
	}
	mylog.Action("rabbitmq_connected").Info("Connected to RabbitMQ")
	return r, nil
}

func (r *RabbitMQ) connect(notifyQueue string) error {
	conn, err := amqp.Dial(URL(r.cfg))
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	err = ch.ExchangeDeclare(
		ChangesExchange, // name
		"topic",         // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		conn.Close()
		return err
	}

	if notifyQueue != "" {
		_, err = ch.QueueDeclare(
			notifyQueue, // name
			true,        // durable
			false,       // delete when unused
			false,       // exclusive
			false,       // no-wait
			nil,         // arguments
		)
		if err != nil {
			conn.Close()
			return err
		}
	}

	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()
	return nil
}

// Channel returns the current channel, reconnecting first when it was closed.
func (r *RabbitMQ) Channel() (*amqp.Channel, error) {
	r.mu.Lock()
	ch, conn := r.ch, r.conn
	r.mu.Unlock()

	if conn != nil && !conn.IsClosed() && ch != nil && !ch.IsClosed() {
		return ch, nil
	}

	r.mylog.Action("rabbitmq_reconnecting").Info("Reconnecting to RabbitMQ")
	if err := r.connect(""); err != nil {
		return nil, fmt.Errorf("rabbitmq reconnect: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch, nil
}

// NewChannel opens a dedicated channel, used by consumers that must not
// share the publishing channel.
func (r *RabbitMQ) NewChannel() (*amqp.Channel, error) {
	if _, err := r.Channel(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return ch, nil
}

func (r *RabbitMQ) IsAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil && !r.conn.IsClosed() && r.ch != nil && !r.ch.IsClosed()
}

// Publish sends a persistent JSON message.
func (r *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	ch, err := r.Channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		})
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
