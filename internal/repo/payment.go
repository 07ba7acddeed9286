package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velmart/backend/internal/models"
)

func (r *GormRepo) CreatePayment(ctx context.Context, p *models.Payment) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *GormRepo) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := r.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPaymentByExternalRef resolves a gateway reference against both the
// initiation reference (payment intent / PayPal order id) and the capture id.
func (r *GormRepo) GetPaymentByExternalRef(ctx context.Context, ref string) (*models.Payment, error) {
	var p models.Payment
	err := r.DB.WithContext(ctx).
		Where("external_ref = ? OR capture_ref = ?", ref, ref).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormRepo) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.DB.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at").
		Find(&payments).Error
	return payments, err
}

// UpdatePaymentStatusCAS is the payment-track counterpart of
// UpdateOrderStatusCAS: the losing writer in a race observes zero rows.
func (r *GormRepo) UpdatePaymentStatusCAS(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.DB.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepo) UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.DB.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *GormRepo) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return r.DB.WithContext(ctx).Create(refund).Error
}

// ReserveRefundAmount claims amount out of the payment's refundable balance
// with a guarded single-statement UPDATE, the same idiom DecrementStock uses:
// concurrent refunds of one payment serialize at the storage layer, and the
// loser sees zero rows instead of overdrawing the captured amount.
func (r *GormRepo) ReserveRefundAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(
		`UPDATE payments SET refunded_amount = refunded_amount + ? WHERE id = ? AND refunded_amount + ? <= amount`,
		amount, id, amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseRefundAmount returns a reservation claimed by ReserveRefundAmount,
// used when the gateway rejects the refund.
func (r *GormRepo) ReleaseRefundAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.DB.WithContext(ctx).Exec(
		`UPDATE payments SET refunded_amount = refunded_amount - ? WHERE id = ?`,
		amount, id,
	).Error
}

// SumRefunds returns the total amount already refunded (or pending refund)
// for a payment. Failed refunds do not count against the refundable amount.
func (r *GormRepo) SumRefunds(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	var refunds []models.Refund
	err := r.DB.WithContext(ctx).
		Where("payment_id = ? AND status <> ?", paymentID, models.RefundStatusFailed).
		Find(&refunds).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, rf := range refunds {
		total = total.Add(rf.Amount)
	}
	return total, nil
}

func (r *GormRepo) ListRefundsByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Refund, error) {
	var refunds []models.Refund
	err := r.DB.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at").
		Find(&refunds).Error
	return refunds, err
}
