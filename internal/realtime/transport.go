package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes on the Redis channel named after the topic
type RedisPublisher struct {
	client redis.UniversalClient
}

func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := p.client.Publish(ctx, topic, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// amqpRealtime is satisfied by messaging.Publisher
type amqpRealtime interface {
	PublishRealtime(ctx context.Context, topic string, body []byte) error
}

// AMQPPublisher publishes on the realtime topic exchange with the topic as routing key
type AMQPPublisher struct {
	pub amqpRealtime
}

func NewAMQPPublisher(pub amqpRealtime) *AMQPPublisher {
	return &AMQPPublisher{pub: pub}
}

func (p *AMQPPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return p.pub.PublishRealtime(ctx, topic, payload)
}
