// Package tracking serves the current state realtime clients resync from after
// reconnecting: a per-order snapshot and the kitchen board of a restaurant.
package tracking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
)

// ItemProgress is the kitchen state of one order line
type ItemProgress struct {
	ID       uuid.UUID         `json:"id"`
	Name     string            `json:"item_name"`
	Quantity int               `json:"quantity"`
	Status   models.ItemStatus `json:"status"`
	Notes    string            `json:"special_instructions,omitempty"`
}

// OrderTracking is the snapshot of an order as a watcher sees it
type OrderTracking struct {
	OrderID       uuid.UUID               `json:"order_id"`
	OrderNumber   string                  `json:"order_number"`
	CurrentStatus models.OrderStatus      `json:"current_status"`
	// Final is set once the order can no longer change status
	Final         bool                    `json:"final"`
	TableNumber   *int                    `json:"table_number,omitempty"`
	Items         []ItemProgress          `json:"items"`
	ItemsReady    int                     `json:"items_ready"`
	ItemsTotal    int                     `json:"items_total"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	History       []models.StatusLogEntry `json:"history,omitempty"`
}

// boardStatuses are the order states shown on the kitchen display
var boardStatuses = []models.OrderStatus{
	models.StatusPending,
	models.StatusConfirmed,
	models.StatusPreparing,
	models.StatusReady,
}

// Service provides tracking functionality
type Service struct {
	orders OrderReader
	db     Pinger
	logger *logger.Logger
}

// NewService creates a new tracking service
func NewService(orders OrderReader, db Pinger, logger *logger.Logger) *Service {
	return &Service{
		orders: orders,
		db:     db,
		logger: logger,
	}
}

// GetOrderStatus returns the order snapshot with its status history.
// An order of another restaurant is reported as not found.
func (s *Service) GetOrderStatus(ctx context.Context, restaurantID, orderID uuid.UUID, requestID string) (*OrderTracking, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.RestaurantID != restaurantID {
		return nil, models.NotFoundError("order", orderID.String())
	}

	history, err := s.orders.History(ctx, orderID)
	if err != nil {
		s.logger.Error("db_query_failed", "Failed to query order history", requestID, err, map[string]interface{}{
			"order_id": orderID.String(),
		})
		return nil, fmt.Errorf("failed to load order history: %w", err)
	}

	t := snapshot(o)
	t.History = history
	return &t, nil
}

// KitchenBoard lists the restaurant's open orders, oldest first
func (s *Service) KitchenBoard(ctx context.Context, restaurantID uuid.UUID, requestID string) ([]OrderTracking, error) {
	var open []*models.Order
	for _, status := range boardStatuses {
		orders, err := s.orders.List(ctx, restaurantID, status)
		if err != nil {
			s.logger.Error("db_query_failed", "Failed to query kitchen board", requestID, err, map[string]interface{}{
				"restaurant_id": restaurantID.String(),
				"status":        string(status),
			})
			return nil, fmt.Errorf("failed to load kitchen board: %w", err)
		}
		open = append(open, orders...)
	}

	sort.SliceStable(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })

	board := make([]OrderTracking, 0, len(open))
	for _, o := range open {
		board = append(board, snapshot(o))
	}
	return board, nil
}

// HealthCheck checks the health of dependencies
func (s *Service) HealthCheck(ctx context.Context) bool {
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health_check_failed", "Database ping failed", "", err, nil)
		return false
	}
	return true
}

func snapshot(o *models.Order) OrderTracking {
	t := OrderTracking{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CurrentStatus: o.Status,
		Final:         o.Status.Terminal(),
		ItemsTotal:    len(o.Items),
		Items:         make([]ItemProgress, 0, len(o.Items)),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.TableNumber != nil {
		n := *o.TableNumber
		t.TableNumber = &n
	}
	for _, item := range o.Items {
		t.Items = append(t.Items, ItemProgress{
			ID:       item.ID,
			Name:     item.ItemName,
			Quantity: item.Quantity,
			Status:   item.Status,
			Notes:    item.SpecialInstructions,
		})
		if item.Status == models.ItemReady || item.Status == models.ItemServed {
			t.ItemsReady++
		}
	}
	return t
}
