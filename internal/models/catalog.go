package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Restaurant is the tenant that owns tables, menu items and orders
type Restaurant struct {
	ID       uuid.UUID
	Name     string
	IsActive bool
}

// Table is a physical table inside a restaurant
type Table struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Number       int
}

// MenuItem is the catalog entry an order line snapshots
type MenuItem struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Name         string
	Price        decimal.Decimal
	IsAvailable  bool
}
