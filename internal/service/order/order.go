// Package order owns the order lifecycle. Status changes go through a
// transition table and a compare-and-swap UPDATE so two racing writers can
// never both win.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/events"
	"github.com/velmart/backend/internal/logging"
	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/repo"
	"github.com/velmart/backend/internal/service/inventory"
	"github.com/velmart/backend/internal/util"
)

var ErrOrderNotFound = fmt.Errorf("%w: order", apperr.ErrNotFound)

type Service struct {
	Repo      *repo.GormRepo
	Inventory *inventory.Ledger
	Events    events.Publisher
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, fmt.Errorf("%w %s", ErrOrderNotFound, id)
		}
		return nil, err
	}
	return o, nil
}

func (s *Service) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Order, error) {
	limit, offset = util.Pagination(limit, offset)
	return s.Repo.ListOrdersByUser(ctx, userID, limit, offset)
}

// Transition moves an order to a new status, validating the move against the
// lifecycle table and applying it with a compare-and-swap. Milestone
// timestamps ride along in the same UPDATE.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, o.Status, to)
	}

	now := time.Now().UTC()
	extra := map[string]any{}
	switch to {
	case models.OrderStatusDelivered:
		extra["completed_at"] = now
	case models.OrderStatusCancelled:
		extra["cancelled_at"] = now
	}

	ok, err := s.Repo.UpdateOrderStatusCAS(ctx, id, o.Status, to, extra)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, o.Status, to)
	}

	s.publish(ctx, id, map[string]any{
		"type":     "order_status_changed",
		"order_id": id,
		"from":     o.Status,
		"to":       to,
	})
	return s.Get(ctx, id)
}

// Cancel cancels an order and compensates everything checkout did: stock
// reserved for each line goes back to the pool and any payment still in
// flight is cancelled. Captured payments are left alone; money already taken
// is returned through the refund flow, not cancellation.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Cancellable(o.Status) {
		return nil, fmt.Errorf("%w: cannot cancel order in status %s", ErrInvalidTransition, o.Status)
	}

	err = s.Repo.WithTx(ctx, func(tx *repo.GormRepo) error {
		now := time.Now().UTC()
		ok, err := tx.UpdateOrderStatusCAS(ctx, id, o.Status, models.OrderStatusCancelled, map[string]any{
			"cancelled_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: cannot cancel order in status %s", ErrInvalidTransition, o.Status)
		}

		for _, item := range o.Items {
			if err := s.Inventory.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		payments, err := tx.ListPaymentsByOrder(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if !CanTransitionPayment(p.Status, models.PaymentStatusCancelled) {
				continue
			}
			ok, err := tx.UpdatePaymentStatusCAS(ctx, p.ID, p.Status, models.PaymentStatusCancelled, map[string]any{
				"failure_reason": reason,
			})
			if err != nil {
				return err
			}
			if ok {
				if err := tx.UpdateOrder(ctx, id, map[string]any{"payment_status": models.PaymentStatusCancelled}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, id, map[string]any{
		"type":     "order_cancelled",
		"order_id": id,
		"reason":   reason,
	})
	return s.Get(ctx, id)
}

// UpdateAdmin applies back-office changes: a fulfilment status move and/or a
// tracking number. Setting a tracking number on its own does not change
// status.
func (s *Service) UpdateAdmin(ctx context.Context, id uuid.UUID, status *models.OrderStatus, trackingNumber *string) (*models.Order, error) {
	if trackingNumber != nil {
		if err := s.Repo.UpdateOrder(ctx, id, map[string]any{"tracking_number": *trackingNumber}); err != nil {
			return nil, err
		}
	}
	if status != nil {
		if *status == models.OrderStatusCancelled {
			return s.Cancel(ctx, id, "cancelled by admin")
		}
		return s.Transition(ctx, id, *status)
	}
	return s.Get(ctx, id)
}

func (s *Service) publish(ctx context.Context, orderID uuid.UUID, event map[string]any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, events.TopicOrderEvents, orderID.String(), event); err != nil {
		logging.FromContext(ctx).Warn("order_event_publish_failed", "error", err)
	}
}
