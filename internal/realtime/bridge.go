package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/messaging"
)

// BridgeRedis forwards every realtime topic published on Redis into dst until ctx ends
func BridgeRedis(ctx context.Context, client redis.UniversalClient, dst Publisher, log *logger.Logger) error {
	sub := client.PSubscribe(ctx, Patterns...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	log.Info("realtime_bridge_started", "Forwarding Redis realtime channels", "", map[string]interface{}{
		"patterns": Patterns,
	})

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			forward(ctx, dst, msg.Channel, []byte(msg.Payload), log)
		}
	}
}

// BridgeAMQP forwards the realtime topic exchange into dst until ctx ends
func BridgeAMQP(ctx context.Context, conn *messaging.Connection, dst Publisher, log *logger.Logger) error {
	for {
		queue, err := conn.DeclareTransientQueue(messaging.ExchangeRealtime, "#")
		if err != nil {
			return err
		}
		deliveries, err := conn.Channel().Consume(queue, "", true, true, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", queue, err)
		}
		log.Info("realtime_bridge_started", "Forwarding AMQP realtime exchange", "", map[string]interface{}{
			"queue": queue,
		})

	loop:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case d, ok := <-deliveries:
				if !ok {
					break loop
				}
				forward(ctx, dst, d.RoutingKey, d.Body, log)
			}
		}

		log.Error("realtime_bridge_closed", "Realtime delivery channel closed, reconnecting", "", nil, nil)
		if err := conn.Reconnect(ctx); err != nil {
			return err
		}
	}
}

func forward(ctx context.Context, dst Publisher, topic string, payload []byte, log *logger.Logger) {
	if !ValidTopic(topic) {
		log.Warn("realtime_bridge_skip", "Ignoring message on unknown topic", "", map[string]interface{}{"topic": topic})
		return
	}
	if err := dst.Publish(ctx, topic, payload); err != nil {
		log.Error("realtime_bridge_forward_failed", "Failed to forward realtime message", "", err, map[string]interface{}{"topic": topic})
	}
}
