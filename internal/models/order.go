package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxDailySequence is the largest per-restaurant-day sequence that fits the YYMMDD#### format
const MaxDailySequence = 9999

// OrderItem is one line of an order. ItemName and UnitPrice are snapshots of the
// menu item taken when the order was placed.
type OrderItem struct {
	ID                  uuid.UUID
	OrderID             uuid.UUID
	MenuItemID          *uuid.UUID
	Position            int
	ItemName            string
	UnitPrice           decimal.Decimal
	Quantity            int
	Subtotal            decimal.Decimal
	Status              ItemStatus
	SpecialInstructions string
	StartedPreparingAt  *time.Time
	ReadyAt             *time.Time
	ServedAt            *time.Time
}

// Order is the aggregate root. Items keep insertion order.
type Order struct {
	ID                  uuid.UUID
	RestaurantID        uuid.UUID
	TableID             *uuid.UUID
	TableNumber         *int
	OrderNumber         string
	CustomerName        string
	CustomerPhone       string
	SpecialInstructions string
	PaymentMethod       PaymentMethod
	Status              OrderStatus
	PaymentStatus       PaymentStatus
	Subtotal            decimal.Decimal
	DiscountAmount      decimal.Decimal
	TaxAmount           decimal.Decimal
	TotalAmount         decimal.Decimal
	CancelReason        string
	ConfirmedAt         *time.Time
	CompletedAt         *time.Time
	CancelledAt         *time.Time
	PaidAt              *time.Time
	Version             int
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Items               []OrderItem
}

// Item returns the line with the given id
func (o *Order) Item(id uuid.UUID) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// NewOrder assembles a PENDING aggregate from a validated request and resolved menu items.
// The order number is assigned separately.
func NewOrder(restaurantID uuid.UUID, table *Table, req *CreateOrderRequest, menu map[uuid.UUID]MenuItem, now time.Time) (*Order, error) {
	order := &Order{
		ID:                  uuid.New(),
		RestaurantID:        restaurantID,
		CustomerName:        req.CustomerName,
		CustomerPhone:       req.CustomerPhone,
		SpecialInstructions: req.SpecialInstructions,
		PaymentMethod:       req.PaymentMethod,
		Status:              StatusPending,
		PaymentStatus:       PaymentUnpaid,
		Subtotal:            decimal.Zero,
		DiscountAmount:      decimal.Zero,
		TaxAmount:           decimal.Zero,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
		Items:               make([]OrderItem, 0, len(req.Items)),
	}
	if table != nil {
		id, number := table.ID, table.Number
		order.TableID = &id
		order.TableNumber = &number
	}

	for i, line := range req.Items {
		menuItem, ok := menu[line.MenuItemID]
		if !ok {
			return nil, NotFoundError("menu item", line.MenuItemID.String())
		}
		menuItemID := menuItem.ID
		unitPrice := menuItem.Price.Round(2)
		lineSubtotal := unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))

		order.Items = append(order.Items, OrderItem{
			ID:                  uuid.New(),
			OrderID:             order.ID,
			MenuItemID:          &menuItemID,
			Position:            i + 1,
			ItemName:            menuItem.Name,
			UnitPrice:           unitPrice,
			Quantity:            line.Quantity,
			Subtotal:            lineSubtotal,
			Status:              ItemPending,
			SpecialInstructions: line.SpecialInstructions,
		})
		order.Subtotal = order.Subtotal.Add(lineSubtotal)
	}

	order.recomputeTotal()
	return order, nil
}

func (o *Order) recomputeTotal() {
	o.TotalAmount = o.Subtotal.Add(o.TaxAmount).Sub(o.DiscountAmount)
}

// CheckInvariants verifies the monetary and composition rules that must hold at creation
func (o *Order) CheckInvariants() error {
	if len(o.Items) == 0 {
		return &ValidationError{Field: "items", Message: "order must contain at least one item"}
	}
	sum := decimal.Zero
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("item %s has non-positive quantity %d", item.ID, item.Quantity)
		}
		if !item.Subtotal.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))) {
			return fmt.Errorf("item %s subtotal %s does not match unit price x quantity", item.ID, item.Subtotal)
		}
		sum = sum.Add(item.Subtotal)
	}
	if !o.Subtotal.Equal(sum) {
		return fmt.Errorf("order subtotal %s does not match item sum %s", o.Subtotal, sum)
	}
	if !o.TotalAmount.Equal(o.Subtotal.Add(o.TaxAmount).Sub(o.DiscountAmount)) {
		return fmt.Errorf("order total %s does not equal subtotal + tax - discount", o.TotalAmount)
	}
	return nil
}

// BusinessDay returns local midnight of the day containing now
func BusinessDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// FormatOrderNumber renders YYMMDD followed by the 4-digit zero padded sequence
func FormatOrderNumber(day time.Time, seq int64) (string, error) {
	if seq < 1 {
		return "", fmt.Errorf("order sequence must be positive, got %d", seq)
	}
	if seq > MaxDailySequence {
		return "", ErrSequenceExhausted
	}
	return fmt.Sprintf("%s%04d", day.Format("060102"), seq), nil
}
