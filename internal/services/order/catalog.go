package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"restaurant-orders/internal/database"
	"restaurant-orders/internal/models"
)

// PostgresCatalog reads restaurants, tables and menu items owned by the menu service
type PostgresCatalog struct {
	db Pool
}

func NewPostgresCatalog(db Pool) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) GetRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error) {
	var r models.Restaurant
	err := c.db.QueryRow(ctx, database.GetRestaurantSQL, id).Scan(&r.ID, &r.Name, &r.IsActive)
	if database.IsNoRows(err) {
		return nil, models.NotFoundError("restaurant", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load restaurant: %w", err)
	}
	return &r, nil
}

func (c *PostgresCatalog) GetTable(ctx context.Context, id uuid.UUID) (*models.Table, error) {
	var t models.Table
	err := c.db.QueryRow(ctx, database.GetTableSQL, id).Scan(&t.ID, &t.RestaurantID, &t.Number)
	if database.IsNoRows(err) {
		return nil, models.NotFoundError("table", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load table: %w", err)
	}
	return &t, nil
}

// GetMenuItems returns the items that exist; missing ids are simply absent from the map
func (c *PostgresCatalog) GetMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error) {
	rows, err := c.db.Query(ctx, database.GetMenuItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID]models.MenuItem, len(ids))
	for rows.Next() {
		var m models.MenuItem
		if err := rows.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.Price, &m.IsAvailable); err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		items[m.ID] = m
	}
	return items, rows.Err()
}
