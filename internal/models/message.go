package models

import (
	"time"

	"github.com/google/uuid"
)

// EventOrderCompleted is the event type of the completion event
const EventOrderCompleted = "order.completed"

// Realtime event names
const (
	EventOrderCreated      = "order.created"
	EventOrderStatusChange = "order.status_changed"
	EventItemStatusChange  = "order_item.status_changed"
	EventOrderDeleted      = "order.deleted"
)

// CompletionEvent is published once per COMPLETED order and drives inventory deduction
type CompletionEvent struct {
	EventID      uuid.UUID `json:"event_id"`
	OrderID      uuid.UUID `json:"order_id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	OrderNumber  string    `json:"order_number"`
	CompletedAt  time.Time `json:"completed_at"`
}

// NewCompletionEvent builds the event for an order that has just completed
func NewCompletionEvent(o *Order) CompletionEvent {
	completedAt := o.UpdatedAt
	if o.CompletedAt != nil {
		completedAt = *o.CompletedAt
	}
	return CompletionEvent{
		EventID:      uuid.New(),
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		OrderNumber:  o.OrderNumber,
		CompletedAt:  completedAt,
	}
}

// RealtimeMessage is the envelope delivered on a realtime topic
type RealtimeMessage struct {
	Event        string         `json:"event"`
	RestaurantID uuid.UUID      `json:"restaurant_id"`
	OrderID      uuid.UUID      `json:"order_id"`
	OldStatus    string         `json:"old_status,omitempty"`
	NewStatus    string         `json:"new_status,omitempty"`
	Order        *OrderView     `json:"order,omitempty"`
	Item         *OrderItemView `json:"item,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// AlertKind classifies alerts on the alert channel
type AlertKind string

const (
	AlertLowStock        AlertKind = "low_stock"
	AlertSideEffectError AlertKind = "side_effect_failure"
)

// Alert is sent to operators through the alerts exchange
type Alert struct {
	Kind         AlertKind      `json:"kind"`
	RestaurantID uuid.UUID      `json:"restaurant_id"`
	OrderID      *uuid.UUID     `json:"order_id,omitempty"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
