package outbox

import (
	"context"
	"time"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/metrics"
)

// EventPublisher is implemented by the AMQP publisher and the Kafka event publisher
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey, eventID string, body []byte) error
}

type Relay struct {
	store        Store
	publisher    EventPublisher
	metrics      *metrics.Metrics
	logger       *logger.Logger
	pollInterval time.Duration
	batchSize    int
}

func NewRelay(store Store, publisher EventPublisher, m *metrics.Metrics, log *logger.Logger, pollInterval time.Duration, batchSize int) *Relay {
	return &Relay{
		store:        store,
		publisher:    publisher,
		metrics:      m,
		logger:       log,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by another poll.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox_relay_started", "Outbox relay started", "", map[string]interface{}{
		"poll_interval_ms": r.pollInterval.Milliseconds(),
		"batch_size":       r.batchSize,
	})

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox_relay_stopped", "Outbox relay stopped", "", nil)
			return ctx.Err()
		case <-timer.C:
		}

		sent, failed, err := r.RunOnce(ctx)
		next := r.pollInterval
		if err == nil && failed == 0 && sent == r.batchSize {
			next = 0
		}
		timer.Reset(next)
	}
}

// RunOnce dispatches a single batch
func (r *Relay) RunOnce(ctx context.Context) (sent, failed int, err error) {
	sent, failed, err = r.store.Dispatch(ctx, r.batchSize, func(ctx context.Context, m Message) error {
		if err := r.publisher.PublishEvent(ctx, m.RoutingKey, m.EventID.String(), m.Payload); err != nil {
			r.logger.Error("outbox_publish_failed", "Failed to publish outbox event", m.EventID.String(), err, map[string]interface{}{
				"event_type":   m.EventType,
				"aggregate_id": m.AggregateID.String(),
				"attempts":     m.Attempts + 1,
			})
			return err
		}
		r.logger.Debug("outbox_published", "Published outbox event", m.EventID.String(), map[string]interface{}{
			"event_type":   m.EventType,
			"aggregate_id": m.AggregateID.String(),
		})
		return nil
	})

	r.metrics.OutboxPublished.Add(float64(sent))
	r.metrics.OutboxFailures.Add(float64(failed))
	if err != nil && ctx.Err() == nil {
		r.logger.Error("outbox_dispatch_failed", "Failed to dispatch outbox batch", "", err, nil)
	}
	return sent, failed, err
}
