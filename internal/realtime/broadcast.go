package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/metrics"
	"restaurant-orders/internal/models"
)

const broadcastTimeout = 3 * time.Second

// AlertSink receives out-of-band failure reports. *messaging.Publisher implements it.
type AlertSink interface {
	PublishAlert(ctx context.Context, alert models.Alert) error
}

// Broadcaster turns order mutations into envelopes and sends them to the
// audiences of each event. Failures are logged, counted and alerted; they are
// never returned to the caller.
type Broadcaster struct {
	pub     Publisher
	alerts  AlertSink
	metrics *metrics.Metrics
	logger  *logger.Logger
	now     func() time.Time
}

func NewBroadcaster(pub Publisher, alerts AlertSink, m *metrics.Metrics, log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		pub:     pub,
		alerts:  alerts,
		metrics: m,
		logger:  log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OrderCreated goes to kitchen and dashboard; nobody watches an order that has no id yet
func (b *Broadcaster) OrderCreated(ctx context.Context, o *models.Order, requestID string) {
	view := o.View()
	b.send(ctx, requestID, models.RealtimeMessage{
		Event:        models.EventOrderCreated,
		RestaurantID: o.RestaurantID,
		OrderID:      o.ID,
		NewStatus:    string(o.Status),
		Order:        &view,
	}, KitchenTopic(o.RestaurantID), DashboardTopic(o.RestaurantID))
}

func (b *Broadcaster) OrderStatusChanged(ctx context.Context, o *models.Order, old models.OrderStatus, requestID string) {
	view := o.View()
	b.send(ctx, requestID, models.RealtimeMessage{
		Event:        models.EventOrderStatusChange,
		RestaurantID: o.RestaurantID,
		OrderID:      o.ID,
		OldStatus:    string(old),
		NewStatus:    string(o.Status),
		Order:        &view,
	}, allAudiences(o)...)
}

func (b *Broadcaster) ItemStatusChanged(ctx context.Context, o *models.Order, item *models.OrderItem, old models.ItemStatus, requestID string) {
	view := item.View()
	b.send(ctx, requestID, models.RealtimeMessage{
		Event:        models.EventItemStatusChange,
		RestaurantID: o.RestaurantID,
		OrderID:      o.ID,
		OldStatus:    string(old),
		NewStatus:    string(item.Status),
		Item:         &view,
	}, allAudiences(o)...)
}

func (b *Broadcaster) OrderDeleted(ctx context.Context, o *models.Order, requestID string) {
	b.send(ctx, requestID, models.RealtimeMessage{
		Event:        models.EventOrderDeleted,
		RestaurantID: o.RestaurantID,
		OrderID:      o.ID,
		OldStatus:    string(o.Status),
	}, allAudiences(o)...)
}

func allAudiences(o *models.Order) []string {
	return []string{OrderTopic(o.ID), KitchenTopic(o.RestaurantID), DashboardTopic(o.RestaurantID)}
}

func (b *Broadcaster) send(ctx context.Context, requestID string, msg models.RealtimeMessage, topics ...string) {
	msg.Timestamp = b.now()
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("realtime_encode_failed", "Failed to encode realtime message", requestID, err, nil)
		return
	}

	// detached from request cancellation: the mutation is already committed
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), broadcastTimeout)
	defer cancel()

	err = PublishAll(ctx, b.pub, payload, topics...)
	b.metrics.RealtimePublished.WithLabelValues(msg.Event).Add(float64(len(topics)))
	if err == nil {
		return
	}

	failed := failedTopics(err)
	b.metrics.RealtimeFailures.WithLabelValues(msg.Event).Add(float64(len(failed)))
	b.logger.Error("realtime_publish_failed", "Failed to fan out order update", requestID, err, map[string]interface{}{
		"event":         msg.Event,
		"order_id":      msg.OrderID.String(),
		"failed_topics": failed,
	})
	b.reportFailure(ctx, requestID, msg, failed, err)
}

func (b *Broadcaster) reportFailure(ctx context.Context, requestID string, msg models.RealtimeMessage, failed []string, cause error) {
	if b.alerts == nil {
		return
	}
	orderID := msg.OrderID
	alert := models.Alert{
		Kind:         models.AlertSideEffectError,
		RestaurantID: msg.RestaurantID,
		OrderID:      &orderID,
		Message:      "realtime fan-out failed",
		Details: map[string]any{
			"event":  msg.Event,
			"topics": failed,
			"error":  cause.Error(),
		},
		Timestamp: b.now(),
	}
	if err := b.alerts.PublishAlert(ctx, alert); err != nil {
		b.logger.Error("alert_publish_failed", "Failed to report fan-out failure", requestID, err, nil)
	}
}

func failedTopics(err error) []string {
	var topics []string
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			var te *TopicError
			if errors.As(e, &te) {
				topics = append(topics, te.Topic)
			}
		}
	}
	return topics
}
