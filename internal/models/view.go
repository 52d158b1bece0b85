package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItemView is the wire representation of an order line
type OrderItemView struct {
	ID                  uuid.UUID  `json:"id"`
	OrderID             uuid.UUID  `json:"order_id"`
	MenuItemID          *uuid.UUID `json:"menu_item_id"`
	Position            int        `json:"position"`
	ItemName            string     `json:"item_name"`
	UnitPrice           string     `json:"unit_price"`
	Quantity            int        `json:"quantity"`
	Subtotal            string     `json:"subtotal"`
	Status              ItemStatus `json:"status"`
	SpecialInstructions string     `json:"special_instructions,omitempty"`
	StartedPreparingAt  *time.Time `json:"started_preparing_at,omitempty"`
	ReadyAt             *time.Time `json:"ready_at,omitempty"`
	ServedAt            *time.Time `json:"served_at,omitempty"`
}

// OrderView is the wire representation of an order and its lines.
// Money is rendered with two decimal places.
type OrderView struct {
	ID                  uuid.UUID       `json:"id"`
	RestaurantID        uuid.UUID       `json:"restaurant_id"`
	TableID             *uuid.UUID      `json:"table_id"`
	TableNumber         *int            `json:"table_number"`
	OrderNumber         string          `json:"order_number"`
	CustomerName        string          `json:"customer_name,omitempty"`
	CustomerPhone       string          `json:"customer_phone,omitempty"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	Status              OrderStatus     `json:"status"`
	PaymentStatus       PaymentStatus   `json:"payment_status"`
	PaymentMethod       PaymentMethod   `json:"payment_method"`
	Subtotal            string          `json:"subtotal"`
	DiscountAmount      string          `json:"discount_amount"`
	TaxAmount           string          `json:"tax_amount"`
	TotalAmount         string          `json:"total_amount"`
	CancelReason        string          `json:"cancel_reason,omitempty"`
	ConfirmedAt         *time.Time      `json:"confirmed_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	CancelledAt         *time.Time      `json:"cancelled_at,omitempty"`
	PaidAt              *time.Time      `json:"paid_at,omitempty"`
	Version             int             `json:"version"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	Items               []OrderItemView `json:"items"`
}

// View snapshots the item; later mutation of the item does not leak into it.
func (i *OrderItem) View() OrderItemView {
	return OrderItemView{
		ID:                  i.ID,
		OrderID:             i.OrderID,
		MenuItemID:          copyUUID(i.MenuItemID),
		Position:            i.Position,
		ItemName:            i.ItemName,
		UnitPrice:           i.UnitPrice.StringFixed(2),
		Quantity:            i.Quantity,
		Subtotal:            i.Subtotal.StringFixed(2),
		Status:              i.Status,
		SpecialInstructions: i.SpecialInstructions,
		StartedPreparingAt:  copyTime(i.StartedPreparingAt),
		ReadyAt:             copyTime(i.ReadyAt),
		ServedAt:            copyTime(i.ServedAt),
	}
}

// View snapshots the order with its items
func (o *Order) View() OrderView {
	items := make([]OrderItemView, 0, len(o.Items))
	for i := range o.Items {
		items = append(items, o.Items[i].View())
	}
	var tableNumber *int
	if o.TableNumber != nil {
		n := *o.TableNumber
		tableNumber = &n
	}
	return OrderView{
		ID:                  o.ID,
		RestaurantID:        o.RestaurantID,
		TableID:             copyUUID(o.TableID),
		TableNumber:         tableNumber,
		OrderNumber:         o.OrderNumber,
		CustomerName:        o.CustomerName,
		CustomerPhone:       o.CustomerPhone,
		SpecialInstructions: o.SpecialInstructions,
		Status:              o.Status,
		PaymentStatus:       o.PaymentStatus,
		PaymentMethod:       o.PaymentMethod,
		Subtotal:            o.Subtotal.StringFixed(2),
		DiscountAmount:      o.DiscountAmount.StringFixed(2),
		TaxAmount:           o.TaxAmount.StringFixed(2),
		TotalAmount:         o.TotalAmount.StringFixed(2),
		CancelReason:        o.CancelReason,
		ConfirmedAt:         copyTime(o.ConfirmedAt),
		CompletedAt:         copyTime(o.CompletedAt),
		CancelledAt:         copyTime(o.CancelledAt),
		PaidAt:              copyTime(o.PaidAt),
		Version:             o.Version,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
		Items:               items,
	}
}

// StatusLogEntry is one row of an order's status history
type StatusLogEntry struct {
	ID        int64       `json:"id"`
	OrderID   uuid.UUID   `json:"order_id"`
	Status    OrderStatus `json:"status"`
	ChangedBy string      `json:"changed_by"`
	Notes     string      `json:"notes,omitempty"`
	ChangedAt time.Time   `json:"changed_at"`
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
