package order

import (
	"fmt"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/models"
)

var ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", apperr.ErrConflict)

// orderTransitions is the full order lifecycle. Cancellation and refunds are
// allowed up to the moment the order ships; once shipped the only way forward
// is delivery, and delivered is terminal.
var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusConfirmed, models.OrderStatusCancelled, models.OrderStatusRefunded},
	models.OrderStatusConfirmed:  {models.OrderStatusProcessing, models.OrderStatusCancelled, models.OrderStatusRefunded},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled, models.OrderStatusRefunded},
	models.OrderStatusShipped:    {models.OrderStatusDelivered},
	models.OrderStatusDelivered:  nil,
	models.OrderStatusCancelled:  nil,
	models.OrderStatusRefunded:   nil,
}

// A failed payment is terminal; retries open a fresh payment row instead of
// reviving the old one.
var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending:    {models.PaymentStatusAuthorized, models.PaymentStatusCaptured, models.PaymentStatusFailed, models.PaymentStatusCancelled},
	models.PaymentStatusAuthorized: {models.PaymentStatusCaptured, models.PaymentStatusFailed, models.PaymentStatusCancelled},
	models.PaymentStatusFailed:     nil,
	models.PaymentStatusCaptured:   nil,
	models.PaymentStatusRefunded:   nil,
	models.PaymentStatusCancelled:  nil,
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionPayment(from, to models.PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(s models.OrderStatus) bool {
	return len(orderTransitions[s]) == 0
}

func IsTerminalPayment(s models.PaymentStatus) bool {
	return len(paymentTransitions[s]) == 0
}

// Cancellable reports whether the customer (or an admin) may still cancel the
// order. Shipped goods cannot be cancelled, only refunded after return.
func Cancellable(s models.OrderStatus) bool {
	switch s {
	case models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusProcessing:
		return true
	}
	return false
}
