package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/messaging"
	"restaurant-orders/internal/models"
)

// Consumer is implemented by *messaging.Consumer
type Consumer interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

// Subscriber prints operator alerts from the alerts queue
type Subscriber struct {
	consumer Consumer
	logger   *logger.Logger
	out      io.Writer
}

// NewSubscriber creates a new notification subscriber
func NewSubscriber(consumer Consumer, logger *logger.Logger) *Subscriber {
	return &Subscriber{
		consumer: consumer,
		logger:   logger,
		out:      os.Stdout,
	}
}

// Start consumes alerts until ctx is cancelled
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	s.logger.Info("service_started", "Notification subscriber started", requestID, nil)

	err := s.consumer.StartConsuming(ctx, s.handleAlert)
	s.gracefulShutdown(requestID)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleAlert processes one alert. Undecodable alerts are dropped.
func (s *Subscriber) handleAlert(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var alert models.Alert
	if err := json.Unmarshal(body, &alert); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse alert", requestID, err, nil)
		return messaging.Permanent(fmt.Errorf("failed to parse alert: %w", err))
	}

	fmt.Fprintln(s.out, formatAlert(&alert))

	fields := map[string]interface{}{
		"kind":          string(alert.Kind),
		"restaurant_id": alert.RestaurantID.String(),
		"message":       alert.Message,
	}
	if alert.OrderID != nil {
		fields["order_id"] = alert.OrderID.String()
	}
	for k, v := range alert.Details {
		fields[k] = v
	}
	s.logger.Warn("alert_received", "Operator alert received", requestID, fields)
	return nil
}

// formatAlert creates a human-readable alert line
func formatAlert(alert *models.Alert) string {
	timestamp := alert.Timestamp.Format("2006-01-02 15:04:05")

	var prefix string
	switch alert.Kind {
	case models.AlertLowStock:
		prefix = "📦 LOW STOCK"
	case models.AlertSideEffectError:
		prefix = "⚠️ DELIVERY FAILURE"
	default:
		prefix = "📋 " + strings.ToUpper(string(alert.Kind))
	}

	message := fmt.Sprintf("%s [%s] restaurant %s: %s", prefix, timestamp, alert.RestaurantID, alert.Message)
	if alert.OrderID != nil {
		message += fmt.Sprintf(" (order %s)", alert.OrderID)
	}

	if len(alert.Details) > 0 {
		keys := make([]string, 0, len(alert.Details))
		for k := range alert.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, alert.Details[k]))
		}
		message += " " + strings.Join(parts, " ")
	}
	return message
}

// gracefulShutdown handles graceful shutdown of the subscriber
func (s *Subscriber) gracefulShutdown(requestID string) {
	s.logger.Info("graceful_shutdown", "Starting graceful shutdown", requestID, nil)

	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.logger.Error("shutdown_failed", "Failed to close consumer", requestID, err, nil)
		}
	}

	s.logger.Info("graceful_shutdown", "Graceful shutdown completed", requestID, nil)
}
