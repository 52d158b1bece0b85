package tracking

import (
	"context"

	"github.com/google/uuid"

	"restaurant-orders/internal/models"
)

// OrderReader is the read side of the order repository
type OrderReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, restaurantID uuid.UUID, status models.OrderStatus) ([]*models.Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.StatusLogEntry, error)
}

// Pinger reports database health
type Pinger interface {
	Ping(ctx context.Context) error
}
