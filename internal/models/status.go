package models

import "time"

// OrderStatus represents the lifecycle status of an order
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusPreparing OrderStatus = "PREPARING"
	StatusReady     OrderStatus = "READY"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusCompleted, StatusCancelled},
	StatusCompleted: nil,
	StatusCancelled: nil,
}

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo checks the order transition table. Self transitions are not edges.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus represents the payment state of an order
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPartial  PaymentStatus = "PARTIAL"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// PaymentMethod is how the customer intends to pay
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "CASH"
	PaymentMomo         PaymentMethod = "MOMO"
	PaymentVNPay        PaymentMethod = "VNPAY"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentMomo, PaymentVNPay, PaymentBankTransfer:
		return true
	}
	return false
}

// ItemStatus represents the kitchen status of a single order line
type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemPreparing ItemStatus = "PREPARING"
	ItemReady     ItemStatus = "READY"
	ItemServed    ItemStatus = "SERVED"
)

var itemRank = map[ItemStatus]int{
	ItemPending:   0,
	ItemPreparing: 1,
	ItemReady:     2,
	ItemServed:    3,
}

func (s ItemStatus) Valid() bool {
	_, ok := itemRank[s]
	return ok
}

// CanTransitionTo allows forward moves only; skipping a stage is permitted.
func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	from, ok := itemRank[s]
	if !ok {
		return false
	}
	to, ok := itemRank[next]
	return ok && to > from
}

// ApplyOrderStatus moves o to next and stamps the matching timestamps.
// It returns changed=false for a same-state request.
func ApplyOrderStatus(o *Order, next OrderStatus, now time.Time) (changed bool, err error) {
	if !next.Valid() {
		return false, &ValidationError{Field: "status", Message: "unknown order status " + string(next)}
	}
	if o.Status == next {
		return false, nil
	}
	if !o.Status.CanTransitionTo(next) {
		return false, &TransitionError{Entity: "order", From: string(o.Status), To: string(next)}
	}

	o.Status = next
	o.UpdatedAt = now

	switch next {
	case StatusConfirmed:
		stampOnce(&o.ConfirmedAt, now)
	case StatusCompleted:
		stampOnce(&o.CompletedAt, now)
		o.PaymentStatus = PaymentPaid
		stampOnce(&o.PaidAt, now)
	case StatusCancelled:
		stampOnce(&o.CancelledAt, now)
	}
	return true, nil
}

// ApplyItemStatus moves item to next and stamps the entered stage.
func ApplyItemStatus(item *OrderItem, next ItemStatus, now time.Time) (changed bool, err error) {
	if !next.Valid() {
		return false, &ValidationError{Field: "status", Message: "unknown item status " + string(next)}
	}
	if item.Status == next {
		return false, nil
	}
	if !item.Status.CanTransitionTo(next) {
		return false, &TransitionError{Entity: "order item", From: string(item.Status), To: string(next)}
	}

	item.Status = next
	switch next {
	case ItemPreparing:
		stampOnce(&item.StartedPreparingAt, now)
	case ItemReady:
		stampOnce(&item.ReadyAt, now)
	case ItemServed:
		stampOnce(&item.ServedAt, now)
	}
	return true, nil
}

func stampOnce(dst **time.Time, now time.Time) {
	if *dst != nil {
		return
	}
	t := now
	*dst = &t
}
