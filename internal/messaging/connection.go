package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"restaurant-orders/internal/config"
	"restaurant-orders/internal/logger"
)

// Exchanges and queues of the order system
const (
	ExchangeOrderEvents = "order_events"
	ExchangeRealtime    = "realtime_topic"
	ExchangeAlerts      = "alerts_fanout"

	QueueInventoryDeduction = "inventory_deduction_queue"
	QueueAlerts             = "alerts_queue"

	RoutingKeyOrderCompleted = "order.completed"
)

// Connection wraps RabbitMQ connection with reconnection logic
type Connection struct {
	mu      sync.RWMutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *logger.Logger
	url     string
	retries int
}

// New creates a new RabbitMQ connection and declares the topology
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Connection, error) {
	conn := &Connection{
		logger:  log,
		url:     cfg.RabbitMQURL(),
		retries: 5,
	}

	if err := conn.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}

	return conn, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Connection) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for i := 0; i < c.retries; i++ {
		c.conn, err = amqp091.Dial(c.url)
		if err == nil {
			c.channel, err = c.conn.Channel()
			if err == nil {
				if setupErr := setupTopology(c.channel); setupErr != nil {
					c.logger.Error("rabbitmq_setup_failed", "Failed to set up topology", "startup", setupErr, nil)
					c.closeLocked()
					err = setupErr
				} else {
					return nil
				}
			} else {
				c.conn.Close()
			}
		}

		if i < c.retries-1 {
			waitTime := time.Duration(i+1) * 2 * time.Second
			c.logger.Error("rabbitmq_connection_failed",
				fmt.Sprintf("Failed to connect to RabbitMQ, retrying in %v", waitTime),
				"startup", err, nil)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", c.retries, err)
}

// exchangeDecl and queueDecl describe what setupTopology declares
type exchangeDecl struct {
	name    string
	kind    string
	durable bool
}

type queueDecl struct {
	name       string
	exchange   string
	routingKey string
}

var exchanges = []exchangeDecl{
	{name: ExchangeOrderEvents, kind: "topic", durable: true},
	{name: ExchangeRealtime, kind: "topic", durable: false},
	{name: ExchangeAlerts, kind: "fanout", durable: true},
}

var queues = []queueDecl{
	{name: QueueInventoryDeduction, exchange: ExchangeOrderEvents, routingKey: RoutingKeyOrderCompleted},
	{name: QueueAlerts, exchange: ExchangeAlerts, routingKey: ""},
}

// setupTopology creates exchanges and durable queues
func setupTopology(ch *amqp091.Channel) error {
	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			ex.name,    // name
			ex.kind,    // type
			ex.durable, // durable
			false,      // auto-deleted
			false,      // internal
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare %s exchange: %w", ex.name, err)
		}
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			q.name, // name
			true,   // durable
			false,  // delete when unused
			false,  // exclusive
			false,  // no-wait
			nil,    // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}

		err = ch.QueueBind(
			q.name,       // queue name
			q.routingKey, // routing key
			q.exchange,   // exchange
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue %s with routing key %s: %w", q.name, q.routingKey, err)
		}
	}

	return nil
}

// DeclareTransientQueue declares a server-named exclusive queue bound to exchange.
// Used by realtime bridges that only care about messages while they are connected.
func (c *Connection) DeclareTransientQueue(exchange, routingKey string) (string, error) {
	ch := c.Channel()
	if ch == nil {
		return "", fmt.Errorf("channel is not open")
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", fmt.Errorf("failed to declare transient queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return "", fmt.Errorf("failed to bind transient queue to %s: %w", exchange, err)
	}
	return q.Name, nil
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp091.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Connection) closeLocked() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsClosed checks if the connection is closed
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn == nil || c.conn.IsClosed() || c.channel == nil || c.channel.IsClosed()
}

// Reconnect attempts to reconnect to RabbitMQ
func (c *Connection) Reconnect(ctx context.Context) error {
	c.Close()
	return c.connect(ctx)
}
