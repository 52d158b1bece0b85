package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/metrics"
	"restaurant-orders/internal/models"
)

const changedBy = "order service"

// Notifier fans committed mutations out to realtime subscribers. It never fails the caller.
type Notifier interface {
	OrderCreated(ctx context.Context, o *models.Order, requestID string)
	OrderStatusChanged(ctx context.Context, o *models.Order, old models.OrderStatus, requestID string)
	ItemStatusChanged(ctx context.Context, o *models.Order, item *models.OrderItem, old models.ItemStatus, requestID string)
	OrderDeleted(ctx context.Context, o *models.Order, requestID string)
}

// Service orchestrates the order lifecycle
type Service struct {
	repo           Repository
	catalog        Catalog
	numbers        *NumberGenerator
	notifier       Notifier
	metrics        *metrics.Metrics
	logger         *logger.Logger
	numberAttempts int
	now            func() time.Time
}

type Options struct {
	// NumberAttempts bounds order number collisions retried per creation
	NumberAttempts int
}

func NewService(repo Repository, catalog Catalog, numbers *NumberGenerator, notifier Notifier, m *metrics.Metrics, log *logger.Logger, opts Options) *Service {
	if opts.NumberAttempts < 1 {
		opts.NumberAttempts = 3
	}
	return &Service{
		repo:           repo,
		catalog:        catalog,
		numbers:        numbers,
		notifier:       notifier,
		metrics:        m,
		logger:         log,
		numberAttempts: opts.NumberAttempts,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder validates the request against the catalog, numbers the order and persists it
func (s *Service) CreateOrder(ctx context.Context, restaurantID uuid.UUID, req *models.CreateOrderRequest, requestID string) (*models.OrderView, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	restaurant, err := s.catalog.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if !restaurant.IsActive {
		return nil, &models.ValidationError{Field: "restaurant_id", Message: "restaurant is not accepting orders"}
	}

	var table *models.Table
	if req.TableID != nil {
		table, err = s.catalog.GetTable(ctx, *req.TableID)
		if err != nil {
			return nil, err
		}
		if table.RestaurantID != restaurantID {
			return nil, models.NotFoundError("table", req.TableID.String())
		}
	}

	menu, err := s.resolveMenu(ctx, restaurantID, req.Items)
	if err != nil {
		return nil, err
	}

	order, err := models.NewOrder(restaurantID, table, req, menu, s.now())
	if err != nil {
		return nil, err
	}
	if err := order.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("order totals inconsistent: %w", err)
	}

	if err := s.persistNew(ctx, order, requestID); err != nil {
		return nil, err
	}

	s.metrics.OrdersCreated.Inc()
	s.logger.Info("order_created", "Order created", requestID, map[string]interface{}{
		"order_id":      order.ID.String(),
		"order_number":  order.OrderNumber,
		"restaurant_id": restaurantID.String(),
		"items":         len(order.Items),
		"total_amount":  order.TotalAmount.StringFixed(2),
	})
	s.notifier.OrderCreated(ctx, order, requestID)

	view := order.View()
	return &view, nil
}

func (s *Service) resolveMenu(ctx context.Context, restaurantID uuid.UUID, lines []models.CreateOrderItemRequest) (map[uuid.UUID]models.MenuItem, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]bool, len(lines))
	for _, line := range lines {
		if !seen[line.MenuItemID] {
			seen[line.MenuItemID] = true
			ids = append(ids, line.MenuItemID)
		}
	}

	menu, err := s.catalog.GetMenuItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, line := range lines {
		item, ok := menu[line.MenuItemID]
		if !ok || item.RestaurantID != restaurantID {
			return nil, models.NotFoundError("menu item", line.MenuItemID.String())
		}
		if !item.IsAvailable {
			return nil, &models.ValidationError{
				Field:   fmt.Sprintf("items[%d].menu_item_id", i),
				Message: fmt.Sprintf("menu item %q is not available", item.Name),
			}
		}
	}
	return menu, nil
}

// persistNew assigns a number and saves, drawing a fresh number on collision
func (s *Service) persistNew(ctx context.Context, order *models.Order, requestID string) error {
	var err error
	for attempt := 1; attempt <= s.numberAttempts; attempt++ {
		order.OrderNumber, err = s.numbers.Next(ctx, order.RestaurantID)
		if err != nil {
			return err
		}

		err = s.repo.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return err
		}

		s.metrics.NumberConflicts.Inc()
		s.logger.Warn("order_number_conflict", "Order number collision, retrying", requestID, map[string]interface{}{
			"order_number": order.OrderNumber,
			"attempt":      attempt,
		})
	}
	return err
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*models.OrderView, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := o.View()
	return &view, nil
}

// ListOrders returns the restaurant's orders newest first, optionally filtered by status
func (s *Service) ListOrders(ctx context.Context, restaurantID uuid.UUID, status string) ([]models.OrderView, error) {
	filter := models.OrderStatus(status)
	if status != "" && !filter.Valid() {
		return nil, &models.ValidationError{Field: "status", Message: "unknown order status " + status}
	}
	if _, err := s.catalog.GetRestaurant(ctx, restaurantID); err != nil {
		return nil, err
	}

	orders, err := s.repo.List(ctx, restaurantID, filter)
	if err != nil {
		return nil, err
	}
	views := make([]models.OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, o.View())
	}
	return views, nil
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id uuid.UUID, next models.OrderStatus, requestID string) (*models.OrderView, error) {
	return s.transition(ctx, id, next, "", requestID)
}

// CancelOrder moves the order to CANCELLED, keeping reason. No inventory is returned.
func (s *Service) CancelOrder(ctx context.Context, id uuid.UUID, reason, requestID string) (*models.OrderView, error) {
	return s.transition(ctx, id, models.StatusCancelled, reason, requestID)
}

// transition applies one status change, reloading and retrying once on a stale write
func (s *Service) transition(ctx context.Context, id uuid.UUID, next models.OrderStatus, reason, requestID string) (*models.OrderView, error) {
	const attempts = 2

	for attempt := 1; ; attempt++ {
		o, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		old := o.Status
		version := o.Version
		changed, err := models.ApplyOrderStatus(o, next, s.now())
		if err != nil {
			return nil, err
		}
		if !changed {
			view := o.View()
			return &view, nil
		}

		change := StatusChange{ExpectedVersion: version, ChangedBy: changedBy}
		if next == models.StatusCancelled && reason != "" {
			o.CancelReason = reason
			change.Notes = reason
		}
		if next == models.StatusCompleted {
			ev := models.NewCompletionEvent(o)
			change.Completion = &ev
		}

		err = s.repo.UpdateStatus(ctx, o, change)
		if errors.Is(err, models.ErrConflict) && attempt < attempts {
			s.metrics.StaleWrites.Inc()
			s.logger.Warn("order_stale_write", "Order changed concurrently, reloading", requestID, map[string]interface{}{
				"order_id": id.String(),
				"version":  version,
			})
			continue
		}
		if err != nil {
			if errors.Is(err, models.ErrConflict) {
				s.metrics.StaleWrites.Inc()
			}
			return nil, err
		}

		s.metrics.StatusTransitions.WithLabelValues(string(next)).Inc()
		s.logger.Info("order_status_changed", "Order status changed", requestID, map[string]interface{}{
			"order_id":     o.ID.String(),
			"order_number": o.OrderNumber,
			"old_status":   string(old),
			"new_status":   string(next),
		})
		s.notifier.OrderStatusChanged(ctx, o, old, requestID)

		view := o.View()
		return &view, nil
	}
}

// UpdateOrderItemStatus moves one line forward in the kitchen flow
func (s *Service) UpdateOrderItemStatus(ctx context.Context, itemID uuid.UUID, next models.ItemStatus, requestID string) (*models.OrderItemView, error) {
	const attempts = 2

	for attempt := 1; ; attempt++ {
		o, err := s.repo.GetByItemID(ctx, itemID)
		if err != nil {
			return nil, err
		}
		item, ok := o.Item(itemID)
		if !ok {
			return nil, models.NotFoundError("order item", itemID.String())
		}

		old := item.Status
		now := s.now()
		changed, err := models.ApplyItemStatus(item, next, now)
		if err != nil {
			return nil, err
		}
		if !changed {
			view := item.View()
			return &view, nil
		}
		o.UpdatedAt = now

		err = s.repo.UpdateItemStatus(ctx, o, item, old)
		if errors.Is(err, models.ErrConflict) && attempt < attempts {
			s.metrics.StaleWrites.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("order_item_status_changed", "Order item status changed", requestID, map[string]interface{}{
			"order_id":   o.ID.String(),
			"item_id":    item.ID.String(),
			"old_status": string(old),
			"new_status": string(next),
		})
		s.notifier.ItemStatusChanged(ctx, o, item, old, requestID)

		view := item.View()
		return &view, nil
	}
}

// DeleteOrder is the administrative hard delete
func (s *Service) DeleteOrder(ctx context.Context, id uuid.UUID, requestID string) error {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Warn("order_deleted", "Order deleted", requestID, map[string]interface{}{
		"order_id":     o.ID.String(),
		"order_number": o.OrderNumber,
		"status":       string(o.Status),
	})
	s.notifier.OrderDeleted(ctx, o, requestID)
	return nil
}

func (s *Service) GetOrderHistory(ctx context.Context, id uuid.UUID) ([]models.StatusLogEntry, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

// OrderRestaurant returns the tenant of an order, used by the HTTP tenant check
func (s *Service) OrderRestaurant(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	return o.RestaurantID, nil
}

// ItemRestaurant returns the tenant of an order item
func (s *Service) ItemRestaurant(ctx context.Context, itemID uuid.UUID) (uuid.UUID, error) {
	o, err := s.repo.GetByItemID(ctx, itemID)
	if err != nil {
		return uuid.Nil, err
	}
	return o.RestaurantID, nil
}
