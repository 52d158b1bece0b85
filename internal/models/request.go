package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	maxOrderLines       = 100
	maxLineQuantity     = 999
	maxCustomerName     = 100
	maxCustomerPhone    = 20
	maxInstructionsSize = 500
)

// CreateOrderItemRequest is one requested line
type CreateOrderItemRequest struct {
	MenuItemID          uuid.UUID `json:"menu_item_id"`
	Quantity            int       `json:"quantity"`
	SpecialInstructions string    `json:"special_instructions,omitempty"`
}

// CreateOrderRequest is the payload accepted by CreateOrder
type CreateOrderRequest struct {
	TableID             *uuid.UUID               `json:"table_id,omitempty"`
	CustomerName        string                   `json:"customer_name,omitempty"`
	CustomerPhone       string                   `json:"customer_phone,omitempty"`
	SpecialInstructions string                   `json:"special_instructions,omitempty"`
	PaymentMethod       PaymentMethod            `json:"payment_method,omitempty"`
	Items               []CreateOrderItemRequest `json:"items"`
}

// UpdateOrderStatusRequest is the body of a status change
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status"`
}

// UpdateItemStatusRequest is the body of an item status change
type UpdateItemStatusRequest struct {
	Status ItemStatus `json:"status"`
}

// CancelOrderRequest carries the optional cancellation reason
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Normalize trims free text fields and defaults the payment method to CASH
func (r *CreateOrderRequest) Normalize() {
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.SpecialInstructions = strings.TrimSpace(r.SpecialInstructions)
	if r.PaymentMethod == "" {
		r.PaymentMethod = PaymentCash
	}
	for i := range r.Items {
		r.Items[i].SpecialInstructions = strings.TrimSpace(r.Items[i].SpecialInstructions)
	}
}

// Validate returns the first field error in the request
func (r *CreateOrderRequest) Validate() error {
	if len(r.CustomerName) > maxCustomerName {
		return &ValidationError{Field: "customer_name", Message: fmt.Sprintf("customer name must be at most %d characters", maxCustomerName)}
	}
	if len(r.CustomerPhone) > maxCustomerPhone {
		return &ValidationError{Field: "customer_phone", Message: fmt.Sprintf("customer phone must be at most %d characters", maxCustomerPhone)}
	}
	if len(r.SpecialInstructions) > maxInstructionsSize {
		return &ValidationError{Field: "special_instructions", Message: fmt.Sprintf("special instructions must be at most %d characters", maxInstructionsSize)}
	}
	if r.PaymentMethod != "" && !r.PaymentMethod.Valid() {
		return &ValidationError{Field: "payment_method", Message: "payment method must be one of CASH, MOMO, VNPAY, BANK_TRANSFER"}
	}
	if r.TableID != nil && *r.TableID == uuid.Nil {
		return &ValidationError{Field: "table_id", Message: "table id must not be empty"}
	}

	if len(r.Items) == 0 {
		return &ValidationError{Field: "items", Message: "order must contain at least one item"}
	}
	if len(r.Items) > maxOrderLines {
		return &ValidationError{Field: "items", Message: fmt.Sprintf("a maximum of %d items is allowed", maxOrderLines)}
	}
	for i, item := range r.Items {
		if item.MenuItemID == uuid.Nil {
			return &ValidationError{Field: fmt.Sprintf("items[%d].menu_item_id", i), Message: "menu item id is required"}
		}
		if item.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "quantity must be greater than 0"}
		}
		if item.Quantity > maxLineQuantity {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: fmt.Sprintf("quantity must be at most %d", maxLineQuantity)}
		}
		if len(item.SpecialInstructions) > maxInstructionsSize {
			return &ValidationError{Field: fmt.Sprintf("items[%d].special_instructions", i), Message: fmt.Sprintf("special instructions must be at most %d characters", maxInstructionsSize)}
		}
	}
	return nil
}
