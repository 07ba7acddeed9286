// Package payment settles orders through pluggable gateways and keeps the
// payment state machine honest: every status move is validated against the
// transition table and applied with a compare-and-swap.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/events"
	"github.com/velmart/backend/internal/logging"
	"github.com/velmart/backend/internal/metrics"
	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/repo"
	"github.com/velmart/backend/internal/service/order"
)

type Service struct {
	Repo     *repo.GormRepo
	Gateways Registry
	Events   events.Publisher
	Metrics  *metrics.Metrics
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, err := s.Repo.GetPayment(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, fmt.Errorf("%w %s", ErrPaymentNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	return s.Repo.ListPaymentsByOrder(ctx, orderID)
}

// Initiate opens the payment on its gateway and stores the gateway reference.
// The payment row must already exist in pending state. A gateway failure
// marks the payment failed so the order can be retried with a fresh attempt;
// the order itself stays pending.
func (s *Service) Initiate(ctx context.Context, p *models.Payment) (*InitiateResult, error) {
	gw, err := s.Gateways.Select(p.Method)
	if err != nil {
		return nil, err
	}

	res, err := gw.Initiate(ctx, InitiateArgs{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Currency:  p.Currency,
	})
	if err != nil {
		if _, casErr := s.Repo.UpdatePaymentStatusCAS(ctx, p.ID, models.PaymentStatusPending, models.PaymentStatusFailed, map[string]any{
			"failure_reason": "gateway initiation failed",
		}); casErr != nil {
			logging.FromContext(ctx).Error("payment_mark_failed", "payment_id", p.ID, "error", casErr)
		}
		s.count(p.Method, models.PaymentStatusFailed)
		return nil, err
	}

	updates := map[string]any{"external_ref": res.ExternalRef}
	if res.BankDetails != nil {
		if raw, err := json.Marshal(res.BankDetails); err == nil {
			updates["gateway_response"] = raw
		}
	}
	if err := s.Repo.UpdatePayment(ctx, p.ID, updates); err != nil {
		return nil, err
	}
	p.ExternalRef = &res.ExternalRef
	return res, nil
}

// RetryForOrder opens a fresh payment attempt for an order whose previous
// attempt failed. Only pending orders qualify.
func (s *Service) RetryForOrder(ctx context.Context, orderID uuid.UUID, method models.PaymentMethod) (*models.Payment, *InitiateResult, error) {
	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, orderID)
		}
		return nil, nil, err
	}
	if o.Status != models.OrderStatusPending {
		return nil, nil, fmt.Errorf("%w: order %s is not awaiting payment", apperr.ErrConflict, orderID)
	}

	existing, err := s.Repo.ListPaymentsByOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range existing {
		switch p.Status {
		case models.PaymentStatusFailed, models.PaymentStatusCancelled:
		default:
			return nil, nil, fmt.Errorf("%w: order %s already has an active payment", apperr.ErrConflict, orderID)
		}
	}

	p := &models.Payment{
		ID:       uuid.New(),
		OrderID:  orderID,
		Amount:   o.TotalAmount,
		Currency: o.Currency,
		Method:   method,
		Status:   models.PaymentStatusPending,
	}
	if err := s.Repo.CreatePayment(ctx, p); err != nil {
		return nil, nil, err
	}
	if err := s.Repo.UpdateOrder(ctx, orderID, map[string]any{"payment_status": models.PaymentStatusPending}); err != nil {
		return nil, nil, err
	}

	res, err := s.Initiate(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	return p, res, nil
}

// Process drives a pending or authorized payment to its outcome. Gateway
// declines settle the payment as failed; transport errors leave it pending so
// webhook reconciliation or a retry can resolve it later.
func (s *Service) Process(ctx context.Context, id uuid.UUID, args ProcessArgs) (*models.Payment, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.IsTerminalPayment(p.Status) {
		return nil, fmt.Errorf("%w: payment %s is already %s", apperr.ErrConflict, id, p.Status)
	}

	gw, err := s.Gateways.Select(p.Method)
	if err != nil {
		return nil, err
	}

	res, err := gw.Process(ctx, p, args)
	if err != nil {
		// Ambiguous: the gateway may or may not have taken the money.
		// Leave the payment where it is and let the webhook decide.
		logging.FromContext(ctx).Warn("payment_process_ambiguous",
			"payment_id", id, "gateway", p.Method, "error", err)
		return nil, err
	}

	return s.settle(ctx, p, res)
}

// MarkCaptured is the manual confirmation used for bank transfers once the
// deposit shows up on the statement.
func (s *Service) MarkCaptured(ctx context.Context, id uuid.UUID, captureRef string) (*models.Payment, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, p, &ProcessResult{Status: models.PaymentStatusCaptured, CaptureRef: captureRef})
}

// Settle applies an outcome reported from outside the request path, which in
// practice means webhook reconciliation.
func (s *Service) Settle(ctx context.Context, p *models.Payment, res *ProcessResult) (*models.Payment, error) {
	return s.settle(ctx, p, res)
}

// settle applies a gateway outcome to the payment and mirrors it onto the
// order.
func (s *Service) settle(ctx context.Context, p *models.Payment, res *ProcessResult) (*models.Payment, error) {
	if res.Status == p.Status {
		return p, nil
	}
	if !order.CanTransitionPayment(p.Status, res.Status) {
		return nil, fmt.Errorf("%w: payment %s -> %s", order.ErrInvalidTransition, p.Status, res.Status)
	}

	extra := map[string]any{}
	if len(res.Raw) > 0 {
		extra["gateway_response"] = res.Raw
	}
	switch res.Status {
	case models.PaymentStatusCaptured:
		extra["captured_at"] = time.Now().UTC()
		if res.CaptureRef != "" {
			extra["capture_ref"] = res.CaptureRef
		}
	case models.PaymentStatusFailed:
		extra["failure_reason"] = res.FailureReason
	}

	ok, err := s.Repo.UpdatePaymentStatusCAS(ctx, p.ID, p.Status, res.Status, extra)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: payment %s -> %s", order.ErrInvalidTransition, p.Status, res.Status)
	}

	if err := s.mirrorOrder(ctx, p.OrderID, res.Status); err != nil {
		return nil, err
	}

	s.count(p.Method, res.Status)
	s.publish(ctx, p.OrderID, map[string]any{
		"type":       "payment_status_changed",
		"payment_id": p.ID,
		"order_id":   p.OrderID,
		"from":       p.Status,
		"to":         res.Status,
	})
	return s.Get(ctx, p.ID)
}

// mirrorOrder keeps the order's denormalized payment_status in sync and
// confirms the order when money lands.
func (s *Service) mirrorOrder(ctx context.Context, orderID uuid.UUID, status models.PaymentStatus) error {
	if err := s.Repo.UpdateOrder(ctx, orderID, map[string]any{"payment_status": status}); err != nil {
		return err
	}
	if status == models.PaymentStatusCaptured {
		// Best effort: the order may already be past pending.
		if _, err := s.Repo.UpdateOrderStatusCAS(ctx, orderID, models.OrderStatusPending, models.OrderStatusConfirmed, nil); err != nil {
			return err
		}
		s.publish(ctx, orderID, map[string]any{
			"type":     "order_confirmed",
			"order_id": orderID,
		})
	}
	return nil
}

// CreateRefund pushes money back for a captured payment. A zero amount means
// the full remaining balance. The sum of non-failed refunds can never exceed
// the captured amount.
func (s *Service) CreateRefund(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, reason string) (*models.Refund, error) {
	p, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusCaptured {
		return nil, fmt.Errorf("%w: status %s", ErrNotRefundable, p.Status)
	}

	remaining := p.Amount.Sub(p.RefundedAmount)
	if amount.IsZero() {
		amount = remaining
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: nothing left to refund", ErrRefundExceedsTotal)
	}

	rf := &models.Refund{
		ID:        uuid.New(),
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Amount:    amount,
		Reason:    reason,
		Status:    models.RefundStatusPending,
	}
	// The balance reservation and the refund row commit together. The guarded
	// UPDATE serializes concurrent refunds of the same payment: whichever
	// writer would overdraw the captured amount sees zero rows and loses.
	err = s.Repo.WithTx(ctx, func(tx *repo.GormRepo) error {
		ok, err := tx.ReserveRefundAmount(ctx, p.ID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s requested, %s refundable", ErrRefundExceedsTotal, amount, remaining)
		}
		return tx.CreateRefund(ctx, rf)
	})
	if err != nil {
		return nil, err
	}

	gw, err := s.Gateways.Select(p.Method)
	if err != nil {
		return nil, err
	}
	if provider, ok := gw.(RefundProvider); ok {
		ref, err := provider.Refund(ctx, p, amount, reason)
		if err != nil {
			if updErr := s.Repo.DB.WithContext(ctx).Model(rf).Updates(map[string]any{"status": models.RefundStatusFailed}).Error; updErr != nil {
				logging.FromContext(ctx).Error("refund_mark_failed", "refund_id", rf.ID, "error", updErr)
			}
			if relErr := s.Repo.ReleaseRefundAmount(ctx, p.ID, amount); relErr != nil {
				logging.FromContext(ctx).Error("refund_release_failed", "refund_id", rf.ID, "error", relErr)
			}
			s.countRefund(p.Method, models.RefundStatusFailed)
			return nil, err
		}
		rf.Status = models.RefundStatusCompleted
		rf.ExternalRef = &ref
		if err := s.Repo.DB.WithContext(ctx).Model(rf).Updates(map[string]any{
			"status":       models.RefundStatusCompleted,
			"external_ref": ref,
		}).Error; err != nil {
			return nil, err
		}
	}
	// Gateways without a refund API (bank transfer) leave the refund pending
	// for manual settlement.

	s.countRefund(p.Method, rf.Status)
	if rf.Status == models.RefundStatusCompleted {
		refunded, err := s.Repo.SumRefunds(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if err := s.finishRefund(ctx, p, refunded); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, p.OrderID, map[string]any{
		"type":       "refund_created",
		"refund_id":  rf.ID,
		"payment_id": p.ID,
		"order_id":   p.OrderID,
		"amount":     amount,
		"status":     rf.Status,
	})
	return rf, nil
}

// CompleteRefund settles a manual (bank transfer) refund once the money has
// actually moved.
func (s *Service) CompleteRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	var rf models.Refund
	if err := s.Repo.DB.WithContext(ctx).First(&rf, "id = ?", refundID).Error; err != nil {
		if repo.IsNotFound(err) {
			return nil, fmt.Errorf("%w: refund %s", apperr.ErrNotFound, refundID)
		}
		return nil, err
	}
	if rf.Status != models.RefundStatusPending {
		return nil, fmt.Errorf("%w: refund is already %s", apperr.ErrConflict, rf.Status)
	}
	if err := s.Repo.DB.WithContext(ctx).Model(&rf).Updates(map[string]any{"status": models.RefundStatusCompleted}).Error; err != nil {
		return nil, err
	}
	rf.Status = models.RefundStatusCompleted

	p, err := s.Get(ctx, rf.PaymentID)
	if err != nil {
		return nil, err
	}
	refunded, err := s.Repo.SumRefunds(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if err := s.finishRefund(ctx, p, refunded); err != nil {
		return nil, err
	}
	return &rf, nil
}

// finishRefund moves the order to refunded when the payment is fully paid
// back. The payment row keeps its captured status; refund rows carry the
// money trail.
func (s *Service) finishRefund(ctx context.Context, p *models.Payment, refunded decimal.Decimal) error {
	if refunded.LessThan(p.Amount) {
		return nil
	}
	o, err := s.Repo.GetOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if !order.CanTransition(o.Status, models.OrderStatusRefunded) {
		return nil
	}
	if _, err := s.Repo.UpdateOrderStatusCAS(ctx, o.ID, o.Status, models.OrderStatusRefunded, map[string]any{
		"payment_status": models.PaymentStatusRefunded,
	}); err != nil {
		return err
	}
	s.publish(ctx, o.ID, map[string]any{
		"type":     "order_refunded",
		"order_id": o.ID,
	})
	return nil
}

func (s *Service) count(method models.PaymentMethod, status models.PaymentStatus) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.PaymentsTotal.WithLabelValues(string(method), string(status)).Inc()
}

func (s *Service) countRefund(method models.PaymentMethod, status models.RefundStatus) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.RefundsTotal.WithLabelValues(string(method), string(status)).Inc()
}

func (s *Service) publish(ctx context.Context, orderID uuid.UUID, event map[string]any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, events.TopicPaymentEvents, orderID.String(), event); err != nil {
		logging.FromContext(ctx).Warn("payment_event_publish_failed", "error", err)
	}
}
