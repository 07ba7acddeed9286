package payment

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/repo"
	"github.com/velmart/backend/internal/service/order"
	"github.com/velmart/backend/internal/testutil"
)

func newService(t *testing.T) (*Service, *repo.GormRepo, *FakeGateway) {
	r := repo.New(testutil.OpenDB(t))
	fake := &FakeGateway{}
	s := &Service{
		Repo: r,
		Gateways: Registry{
			models.PaymentMethodStripe:       fake,
			models.PaymentMethodBankTransfer: &BankTransferGateway{Details: BankDetails{BankName: "BBVA"}},
		},
	}
	return s, r, fake
}

func seedOrderWithPayment(t *testing.T, r *repo.GormRepo, method models.PaymentMethod, status models.PaymentStatus) (*models.Order, *models.Payment) {
	t.Helper()
	o := &models.Order{
		ID:            uuid.New(),
		Status:        models.OrderStatusPending,
		PaymentStatus: status,
		Subtotal:      decimal.RequireFromString("91.98"),
		TaxAmount:     decimal.RequireFromString("14.72"),
		ShippingCost:  decimal.RequireFromString("99.00"),
		TotalAmount:   decimal.RequireFromString("205.70"),
		Currency:      "MXN",
	}
	require.NoError(t, r.CreateOrder(context.Background(), o))

	p := &models.Payment{
		ID:       uuid.New(),
		OrderID:  o.ID,
		Amount:   o.TotalAmount,
		Currency: o.Currency,
		Method:   method,
		Status:   status,
	}
	require.NoError(t, r.CreatePayment(context.Background(), p))
	return o, p
}

func TestProcessCapturesAndConfirmsOrder(t *testing.T) {
	s, r, _ := newService(t)
	o, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusPending)

	got, err := s.Process(context.Background(), p.ID, ProcessArgs{PaymentMethodToken: "pm_test"})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCaptured, got.Status)
	require.NotNil(t, got.CapturedAt)
	require.NotNil(t, got.CaptureRef)

	o2, err := r.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusConfirmed, o2.Status)
	require.Equal(t, models.PaymentStatusCaptured, o2.PaymentStatus)
}

func TestProcessDeclineSettlesAsFailed(t *testing.T) {
	s, r, fake := newService(t)
	fake.DeclineReason = "insufficient_funds"
	o, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusPending)

	got, err := s.Process(context.Background(), p.ID, ProcessArgs{PaymentMethodToken: "pm_test"})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, got.Status)
	require.Equal(t, "insufficient_funds", got.FailureReason)

	// The order stays pending so the customer can retry.
	o2, err := r.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, o2.Status)
	require.Equal(t, models.PaymentStatusFailed, o2.PaymentStatus)
}

func TestProcessAmbiguousErrorLeavesPaymentPending(t *testing.T) {
	s, r, fake := newService(t)
	fake.ProcessErr = GatewayTimeout()
	_, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusPending)

	_, err := s.Process(context.Background(), p.ID, ProcessArgs{PaymentMethodToken: "pm_test"})
	require.ErrorIs(t, err, apperr.ErrGateway)

	got, err := s.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPending, got.Status)
}

func TestProcessRejectsSettledPayment(t *testing.T) {
	s, r, _ := newService(t)
	_, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusCaptured)

	_, err := s.Process(context.Background(), p.ID, ProcessArgs{PaymentMethodToken: "pm_test"})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestProcessRejectsFailedPayment(t *testing.T) {
	s, r, _ := newService(t)
	_, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusFailed)

	// A failed payment is settled; retries go through a fresh payment row.
	_, err := s.Process(context.Background(), p.ID, ProcessArgs{PaymentMethodToken: "pm_test"})
	require.ErrorIs(t, err, apperr.ErrConflict)

	got, err := s.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, got.Status)
}

func TestMarkCapturedForBankTransfer(t *testing.T) {
	s, r, _ := newService(t)
	o, p := seedOrderWithPayment(t, r, models.PaymentMethodBankTransfer, models.PaymentStatusPending)

	got, err := s.MarkCaptured(context.Background(), p.ID, "stmt-2024-0131")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCaptured, got.Status)

	o2, err := r.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusConfirmed, o2.Status)
}

func TestInitiateFailureMarksPaymentFailed(t *testing.T) {
	s, r, fake := newService(t)
	fake.InitiateErr = GatewayTimeout()
	_, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusPending)

	_, err := s.Initiate(context.Background(), p)
	require.Error(t, err)

	got, err := s.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, got.Status)
}

func TestRetryForOrder(t *testing.T) {
	s, r, _ := newService(t)
	o, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusFailed)
	require.NoError(t, r.UpdateOrder(context.Background(), o.ID, map[string]any{"payment_status": models.PaymentStatusFailed}))

	fresh, init, err := s.RetryForOrder(context.Background(), o.ID, models.PaymentMethodStripe)
	require.NoError(t, err)
	require.NotEqual(t, p.ID, fresh.ID)
	require.Equal(t, models.PaymentStatusPending, fresh.Status)
	require.NotEmpty(t, init.ClientSecret)
}

func TestRetryForOrderRejectsActivePayment(t *testing.T) {
	s, r, _ := newService(t)
	o, _ := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusPending)

	_, _, err := s.RetryForOrder(context.Background(), o.ID, models.PaymentMethodStripe)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRefundCapInvariant(t *testing.T) {
	s, r, _ := newService(t)
	_, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusCaptured)

	// First partial refund passes.
	rf, err := s.CreateRefund(context.Background(), p.ID, decimal.RequireFromString("150.00"), "damaged item")
	require.NoError(t, err)
	require.Equal(t, models.RefundStatusCompleted, rf.Status)
	require.NotNil(t, rf.ExternalRef)

	// A second refund beyond the captured amount is rejected.
	_, err = s.CreateRefund(context.Background(), p.ID, decimal.RequireFromString("100.00"), "greedy")
	require.ErrorIs(t, err, ErrRefundExceedsTotal)

	// The exact remainder is fine.
	_, err = s.CreateRefund(context.Background(), p.ID, decimal.RequireFromString("55.70"), "rest")
	require.NoError(t, err)
}

// Two admins refunding 150.00 of a 205.70 payment at the same time: exactly
// one may win, and the refunded total must never overdraw the capture.
func TestConcurrentRefundsRespectCap(t *testing.T) {
	s, r, _ := newService(t)
	_, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusCaptured)

	const admins = 2
	errs := make([]error, admins)
	var wg sync.WaitGroup
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateRefund(context.Background(), p.ID, decimal.RequireFromString("150.00"), "damaged item")
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrRefundExceedsTotal)
			failures++
		}
	}
	require.Equal(t, 1, failures)

	refunded, err := r.SumRefunds(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, refunded.LessThanOrEqual(p.Amount), "refunded %s exceeds captured %s", refunded, p.Amount)
}

func TestGatewayRefundFailureReleasesBalance(t *testing.T) {
	s, r, fake := newService(t)
	_, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusCaptured)

	fake.RefundErr = GatewayTimeout()
	_, err := s.CreateRefund(context.Background(), p.ID, decimal.RequireFromString("150.00"), "damaged item")
	require.Error(t, err)

	// The failed attempt must not eat into the refundable balance.
	fake.RefundErr = nil
	rf, err := s.CreateRefund(context.Background(), p.ID, decimal.Zero, "order returned")
	require.NoError(t, err)
	require.True(t, rf.Amount.Equal(p.Amount))
}

func TestFullRefundMarksOrderRefunded(t *testing.T) {
	s, r, _ := newService(t)
	o, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusCaptured)

	// Zero amount means everything that is left.
	rf, err := s.CreateRefund(context.Background(), p.ID, decimal.Zero, "order returned")
	require.NoError(t, err)
	require.True(t, rf.Amount.Equal(p.Amount))

	o2, err := r.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusRefunded, o2.Status)
	require.Equal(t, models.PaymentStatusRefunded, o2.PaymentStatus)

	// The payment row keeps its captured status; the refund rows carry the
	// money trail.
	p2, err := s.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCaptured, p2.Status)
}

func TestRefundRequiresCapturedPayment(t *testing.T) {
	s, r, _ := newService(t)
	_, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusPending)

	_, err := s.CreateRefund(context.Background(), p.ID, decimal.RequireFromString("10.00"), "nope")
	require.ErrorIs(t, err, ErrNotRefundable)
}

func TestBankTransferRefundStaysPendingUntilCompleted(t *testing.T) {
	s, r, _ := newService(t)
	o, p := seedOrderWithPayment(t, r, models.PaymentMethodBankTransfer, models.PaymentStatusCaptured)

	rf, err := s.CreateRefund(context.Background(), p.ID, decimal.Zero, "returned")
	require.NoError(t, err)
	require.Equal(t, models.RefundStatusPending, rf.Status)

	// Order untouched until the manual transfer is confirmed.
	o2, err := r.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, o2.Status)

	done, err := s.CompleteRefund(context.Background(), rf.ID)
	require.NoError(t, err)
	require.Equal(t, models.RefundStatusCompleted, done.Status)

	o2, err = r.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusRefunded, o2.Status)
}

func TestSelectUnknownMethod(t *testing.T) {
	s, _, _ := newService(t)
	_, err := s.Gateways.Select(models.PaymentMethodCash)
	require.ErrorIs(t, err, ErrUnsupportedMethod)
}

func TestSettleRejectsRegression(t *testing.T) {
	s, r, _ := newService(t)
	_, p := seedOrderWithPayment(t, r, models.PaymentMethodStripe, models.PaymentStatusCaptured)

	_, err := s.Settle(context.Background(), p, &ProcessResult{Status: models.PaymentStatusFailed})
	require.ErrorIs(t, err, order.ErrInvalidTransition)
}
