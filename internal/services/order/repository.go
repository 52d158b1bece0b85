package order

import (
	"context"

	"github.com/google/uuid"

	"restaurant-orders/internal/models"
)

// Catalog resolves the collaborators an order references
type Catalog interface {
	GetRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
	GetTable(ctx context.Context, id uuid.UUID) (*models.Table, error)
	GetMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error)
}

// StatusChange carries what has to be written alongside a status transition
type StatusChange struct {
	// ExpectedVersion is the version the order was loaded at
	ExpectedVersion int
	ChangedBy       string
	Notes           string
	// Completion is written to the outbox when the order completes
	Completion *models.CompletionEvent
}

// Repository persists orders. Every method is atomic.
type Repository interface {
	// Create saves the order with all its items. A duplicate order number yields models.ErrConflict.
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByItemID(ctx context.Context, itemID uuid.UUID) (*models.Order, error)
	// List returns newest first; an empty status matches all
	List(ctx context.Context, restaurantID uuid.UUID, status models.OrderStatus) ([]*models.Order, error)
	// UpdateStatus writes the order's status fields if its version still equals
	// change.ExpectedVersion, otherwise models.ErrConflict. o.Version is advanced on success.
	UpdateStatus(ctx context.Context, o *models.Order, change StatusChange) error
	// UpdateItemStatus writes item only if its stored status is still from
	UpdateItemStatus(ctx context.Context, o *models.Order, item *models.OrderItem, from models.ItemStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	History(ctx context.Context, orderID uuid.UUID) ([]models.StatusLogEntry, error)
}
