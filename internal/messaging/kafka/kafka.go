// Package kafka carries order events over Kafka when it is selected as the event bus.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/messaging"
)

var ErrDisabled = errors.New("kafka disabled")

type Client struct {
	Brokers []string
}

func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c *Client) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

func (c *Client) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.Brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// messageWriter is the part of *kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher writes order events to a single topic. The routing key travels
// as a header so consumers can filter like an AMQP topic binding.
type EventPublisher struct {
	writer messageWriter
}

func NewEventPublisher(client *Client, topic string) (*EventPublisher, error) {
	if !client.Enabled() {
		return nil, ErrDisabled
	}
	return &EventPublisher{writer: client.NewWriter(topic)}, nil
}

// PublishEvent keys the message by event id
func (p *EventPublisher) PublishEvent(ctx context.Context, routingKey, eventID string, body []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(eventID),
		Value:   body,
		Time:    time.Now().UTC(),
		Headers: []kafka.Header{{Key: "routing_key", Value: []byte(routingKey)}},
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

func (p *EventPublisher) Close() error {
	return p.writer.Close()
}

// messageReader is the part of *kafka.Reader the consumer needs
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds messages with a matching routing key to a handler.
// Offsets are committed only after the handler succeeds or the failure is permanent.
type Consumer struct {
	reader     messageReader
	logger     *logger.Logger
	routingKey string
	retryDelay time.Duration
}

func NewConsumer(client *Client, topic, groupID, routingKey string, log *logger.Logger) (*Consumer, error) {
	if !client.Enabled() {
		return nil, ErrDisabled
	}
	return &Consumer{
		reader:     client.NewReader(topic, groupID),
		logger:     log,
		routingKey: routingKey,
		retryDelay: 2 * time.Second,
	}, nil
}

func (c *Consumer) StartConsuming(ctx context.Context, handler messaging.MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("kafka_read_failed", "Failed to read kafka message", "", err, nil)
			if !sleep(ctx, c.retryDelay) {
				return ctx.Err()
			}
			continue
		}

		if key := header(msg, "routing_key"); c.routingKey != "" && key != c.routingKey {
			c.commit(ctx, msg)
			continue
		}

		for {
			err = handler(ctx, msg.Value)
			if err == nil || errors.Is(err, messaging.ErrPermanent) {
				break
			}
			c.logger.Error("message_processing_failed", "Failed to process kafka message, retrying", "", err, map[string]interface{}{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			})
			if !sleep(ctx, c.retryDelay) {
				return ctx.Err()
			}
		}
		if err != nil {
			c.logger.Error("message_dropped", "Dropping kafka message that cannot be processed", "", err, map[string]interface{}{
				"offset": msg.Offset,
			})
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("kafka_commit_failed", "Failed to commit kafka offset", "", err, nil)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
