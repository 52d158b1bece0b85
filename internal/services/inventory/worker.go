// Package inventory draws ingredient stock down when orders complete.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/messaging"
	"restaurant-orders/internal/metrics"
	"restaurant-orders/internal/models"
)

const alertTimeout = 3 * time.Second

// Consumer is implemented by the RabbitMQ and Kafka consumers
type Consumer interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

// AlertSink receives low stock alerts
type AlertSink interface {
	PublishAlert(ctx context.Context, alert models.Alert) error
}

// Worker consumes completion events and applies their deduction
type Worker struct {
	consumer Consumer
	store    Store
	alerts   AlertSink
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewWorker(consumer Consumer, store Store, alerts AlertSink, m *metrics.Metrics, log *logger.Logger) *Worker {
	return &Worker{
		consumer: consumer,
		store:    store,
		alerts:   alerts,
		metrics:  m,
		logger:   log,
	}
}

// Start consumes until ctx is cancelled, then closes the consumer
func (w *Worker) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	w.logger.Info("worker_started", "Inventory deduction worker started", requestID, nil)

	err := w.consumer.StartConsuming(ctx, w.HandleMessage)

	w.logger.Info("graceful_shutdown", "Stopping inventory deduction worker", requestID, nil)
	if closeErr := w.consumer.Close(); closeErr != nil {
		w.logger.Error("shutdown_failed", "Failed to close consumer", requestID, closeErr, nil)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleMessage processes one completion event. Undecodable events are dropped.
func (w *Worker) HandleMessage(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var ev models.CompletionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		w.logger.Error("message_parsing_failed", "Failed to parse completion event", requestID, err, nil)
		return messaging.Permanent(fmt.Errorf("failed to parse completion event: %w", err))
	}
	if ev.OrderID == uuid.Nil {
		w.logger.Error("message_invalid", "Completion event has no order id", requestID, nil, map[string]interface{}{
			"event_id": ev.EventID.String(),
		})
		return messaging.Permanent(errors.New("completion event without order id"))
	}

	res, err := w.store.Deduct(ctx, ev)
	if err != nil {
		w.logger.Error("inventory_deduction_failed", "Failed to deduct inventory", requestID, err, map[string]interface{}{
			"order_id": ev.OrderID.String(),
		})
		w.reportFailure(ctx, ev, "inventory deduction failed", map[string]any{
			"error": err.Error(),
		}, requestID)
		return err
	}

	if !res.Applied {
		w.metrics.DeductionsSkipped.Inc()
		w.logger.Info("inventory_deduction_skipped", "Order already deducted", requestID, map[string]interface{}{
			"order_id": ev.OrderID.String(),
			"event_id": ev.EventID.String(),
		})
		return nil
	}

	w.metrics.DeductionsApplied.Inc()
	if len(res.Unmapped) > 0 {
		w.logger.Warn("recipe_missing", "Order lines without recipe were not deducted", requestID, map[string]interface{}{
			"order_id": ev.OrderID.String(),
			"items":    res.Unmapped,
		})
		w.reportFailure(ctx, ev, "order lines without recipe were not deducted", map[string]any{
			"items": res.Unmapped,
		}, requestID)
	}
	w.logger.Info("inventory_deducted", fmt.Sprintf("Deducted inventory for order %s", ev.OrderNumber), requestID, map[string]interface{}{
		"order_id":    ev.OrderID.String(),
		"ingredients": len(res.Adjustments),
	})

	for _, adj := range res.Adjustments {
		if adj.Low() {
			w.alertLowStock(ctx, ev, adj, requestID)
		}
	}
	return nil
}

// reportFailure sends a side effect failure alert; the order itself stays committed
func (w *Worker) reportFailure(ctx context.Context, ev models.CompletionEvent, message string, details map[string]any, requestID string) {
	orderID := ev.OrderID
	details["order_number"] = ev.OrderNumber
	alert := models.Alert{
		Kind:         models.AlertSideEffectError,
		RestaurantID: ev.RestaurantID,
		OrderID:      &orderID,
		Message:      message,
		Details:      details,
		Timestamp:    time.Now().UTC(),
	}
	// the handler context may already be the reason the deduction failed
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := w.alerts.PublishAlert(ctx, alert); err != nil {
		w.logger.Error("alert_publish_failed", "Failed to report inventory failure", requestID, err, map[string]interface{}{
			"order_id": ev.OrderID.String(),
		})
	}
}

// alertLowStock runs after the deduction committed; a failed alert never redelivers the event
func (w *Worker) alertLowStock(ctx context.Context, ev models.CompletionEvent, adj Adjustment, requestID string) {
	w.metrics.LowStockAlerts.Inc()
	orderID := ev.OrderID
	alert := models.Alert{
		Kind:         models.AlertLowStock,
		RestaurantID: ev.RestaurantID,
		OrderID:      &orderID,
		Message:      fmt.Sprintf("%s is low: %s %s left", adj.Name, adj.StockAfter.String(), adj.Unit),
		Details: map[string]any{
			"ingredient_id": adj.IngredientID.String(),
			"current_stock": adj.StockAfter.String(),
			"min_stock":     adj.MinStock.String(),
			"unit":          adj.Unit,
		},
		Timestamp: time.Now().UTC(),
	}
	if err := w.alerts.PublishAlert(ctx, alert); err != nil {
		w.logger.Error("alert_publish_failed", "Failed to publish low stock alert", requestID, err, map[string]interface{}{
			"ingredient_id": adj.IngredientID.String(),
		})
	}
}
