package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"restaurant-orders/internal/database"
	"restaurant-orders/internal/messaging"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/outbox"
)

const orderNumberConstraint = "orders_restaurant_number_key"

// Pool is the subset of *pgxpool.Pool the repositories use
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository on pgx
type PostgresRepository struct {
	db Pool
}

func NewPostgresRepository(db Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, o *models.Order) error {
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, database.InsertOrderSQL,
			o.ID, o.RestaurantID, o.TableID, o.OrderNumber, o.CustomerName, o.CustomerPhone,
			o.SpecialInstructions, o.Status, o.PaymentStatus, o.PaymentMethod,
			o.Subtotal, o.DiscountAmount, o.TaxAmount, o.TotalAmount, o.Version, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, item := range o.Items {
			batch.Queue(database.InsertOrderItemSQL,
				item.ID, item.OrderID, item.MenuItemID, item.Position, item.ItemName, item.UnitPrice,
				item.Quantity, item.Subtotal, item.Status, item.SpecialInstructions)
		}
		batch.Queue(database.InsertOrderStatusLogSQL, o.ID, o.Status, "order service", "order placed", o.CreatedAt)
		return tx.SendBatch(ctx, batch).Close()
	})

	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err, orderNumberConstraint):
		return fmt.Errorf("order number %s already taken: %w", o.OrderNumber, models.ErrConflict)
	default:
		return fmt.Errorf("failed to create order: %w", err)
	}
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.getOne(ctx, database.GetOrderByIDSQL, id, "order")
}

func (r *PostgresRepository) GetByItemID(ctx context.Context, itemID uuid.UUID) (*models.Order, error) {
	return r.getOne(ctx, database.GetOrderByItemIDSQL, itemID, "order item")
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, id uuid.UUID, entity string) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if database.IsNoRows(err) {
		return nil, models.NotFoundError(entity, id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", entity, id, err)
	}
	if err := r.loadItems(ctx, []*models.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) List(ctx context.Context, restaurantID uuid.UUID, status models.OrderStatus) ([]*models.Order, error) {
	rows, err := r.db.Query(ctx, database.ListOrdersSQL, restaurantID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Order, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := r.db.Query(ctx, database.GetOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.MenuItemID, &item.Position, &item.ItemName,
			&item.UnitPrice, &item.Quantity, &item.Subtotal, &item.Status, &item.SpecialInstructions,
			&item.StartedPreparingAt, &item.ReadyAt, &item.ServedAt)
		if err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o := byID[item.OrderID]; o != nil {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.RestaurantID, &o.TableID, &o.TableNumber, &o.OrderNumber,
		&o.CustomerName, &o.CustomerPhone, &o.SpecialInstructions,
		&o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.TotalAmount, &o.CancelReason,
		&o.ConfirmedAt, &o.CompletedAt, &o.CancelledAt, &o.PaidAt,
		&o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, o *models.Order, change StatusChange) error {
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, database.UpdateOrderStatusSQL,
			o.ID, o.Status, o.PaymentStatus, o.CancelReason,
			o.ConfirmedAt, o.CompletedAt, o.CancelledAt, o.PaidAt,
			o.UpdatedAt, change.ExpectedVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("order %s changed since version %d: %w", o.ID, change.ExpectedVersion, models.ErrConflict)
		}

		if _, err := tx.Exec(ctx, database.InsertOrderStatusLogSQL, o.ID, o.Status, change.ChangedBy, change.Notes, o.UpdatedAt); err != nil {
			return err
		}

		if ev := change.Completion; ev != nil {
			if _, err := outbox.Insert(ctx, tx, ev.EventID, models.EventOrderCompleted, ev.OrderID, messaging.RoutingKeyOrderCompleted, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	o.Version = change.ExpectedVersion + 1
	return nil
}

func (r *PostgresRepository) UpdateItemStatus(ctx context.Context, o *models.Order, item *models.OrderItem, from models.ItemStatus) error {
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, database.UpdateOrderItemStatusSQL,
			item.ID, item.Status, item.StartedPreparingAt, item.ReadyAt, item.ServedAt, from)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("order item %s is no longer %s: %w", item.ID, from, models.ErrConflict)
		}
		_, err = tx.Exec(ctx, database.TouchOrderSQL, o.ID, o.UpdatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update order item status: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, database.DeleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.NotFoundError("order", id.String())
	}
	return nil
}

func (r *PostgresRepository) History(ctx context.Context, orderID uuid.UUID) ([]models.StatusLogEntry, error) {
	rows, err := r.db.Query(ctx, database.GetOrderStatusHistorySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}
	defer rows.Close()

	var history []models.StatusLogEntry
	for rows.Next() {
		var e models.StatusLogEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.ChangedBy, &e.Notes, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		history = append(history, e)
	}
	return history, rows.Err()
}
