package order

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/repo"
	"github.com/velmart/backend/internal/service/inventory"
	"github.com/velmart/backend/internal/testutil"
)

func newService(t *testing.T) (*Service, *repo.GormRepo) {
	r := repo.New(testutil.OpenDB(t))
	return &Service{Repo: r, Inventory: &inventory.Ledger{Repo: r}}, r
}

func seedOrder(t *testing.T, r *repo.GormRepo, status models.OrderStatus, items []models.OrderItem) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:            uuid.New(),
		Status:        status,
		PaymentStatus: models.PaymentStatusPending,
		Subtotal:      decimal.RequireFromString("100.00"),
		TaxAmount:     decimal.RequireFromString("16.00"),
		ShippingCost:  decimal.RequireFromString("99.00"),
		TotalAmount:   decimal.RequireFromString("215.00"),
		Currency:      "MXN",
		Items:         items,
	}
	require.NoError(t, r.CreateOrder(context.Background(), o))
	return o
}

func TestTransitionHappyPath(t *testing.T) {
	s, r := newService(t)
	o := seedOrder(t, r, models.OrderStatusConfirmed, nil)

	got, err := s.Transition(context.Background(), o.ID, models.OrderStatusProcessing)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusProcessing, got.Status)

	got, err = s.Transition(context.Background(), o.ID, models.OrderStatusShipped)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusShipped, got.Status)

	got, err = s.Transition(context.Background(), o.ID, models.OrderStatusDelivered)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusDelivered, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	s, r := newService(t)
	o := seedOrder(t, r, models.OrderStatusPending, nil)

	_, err := s.Transition(context.Background(), o.ID, models.OrderStatusShipped)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// Status untouched by the failed attempt.
	got, err := s.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, got.Status)
}

func TestTransitionUnknownOrder(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Transition(context.Background(), uuid.New(), models.OrderStatusConfirmed)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancelReleasesStockAndCancelsPayment(t *testing.T) {
	s, r := newService(t)
	p := testutil.SeedProduct(t, r, "Keyboard", "KB-01", "45.99", 7)

	// Simulate a confirmed order holding 3 units.
	ok, err := r.DecrementStock(context.Background(), p.ID, 3)
	require.NoError(t, err)
	require.True(t, ok)

	o := seedOrder(t, r, models.OrderStatusConfirmed, []models.OrderItem{{
		ProductID: p.ID,
		Name:      p.Name,
		SKU:       p.SKU,
		UnitPrice: p.Price,
		Quantity:  3,
		LineTotal: decimal.RequireFromString("137.97"),
	}})
	pay := &models.Payment{
		ID:       uuid.New(),
		OrderID:  o.ID,
		Amount:   o.TotalAmount,
		Currency: o.Currency,
		Method:   models.PaymentMethodBankTransfer,
		Status:   models.PaymentStatusPending,
	}
	require.NoError(t, r.CreatePayment(context.Background(), pay))

	got, err := s.Cancel(context.Background(), o.ID, "customer changed their mind")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	require.Equal(t, models.PaymentStatusCancelled, got.PaymentStatus)

	stock, err := r.GetStock(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 7, stock.Quantity)

	pay, err = r.GetPayment(context.Background(), pay.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCancelled, pay.Status)
}

func TestCancelLeavesCapturedPaymentAlone(t *testing.T) {
	s, r := newService(t)
	o := seedOrder(t, r, models.OrderStatusConfirmed, nil)
	pay := &models.Payment{
		ID:       uuid.New(),
		OrderID:  o.ID,
		Amount:   o.TotalAmount,
		Currency: o.Currency,
		Method:   models.PaymentMethodStripe,
		Status:   models.PaymentStatusCaptured,
	}
	require.NoError(t, r.CreatePayment(context.Background(), pay))

	_, err := s.Cancel(context.Background(), o.ID, "test")
	require.NoError(t, err)

	pay, err = r.GetPayment(context.Background(), pay.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCaptured, pay.Status)
}

func TestCancelRejectsShippedOrder(t *testing.T) {
	s, r := newService(t)
	o := seedOrder(t, r, models.OrderStatusShipped, nil)

	_, err := s.Cancel(context.Background(), o.ID, "too late")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelIsNotRepeatable(t *testing.T) {
	s, r := newService(t)
	o := seedOrder(t, r, models.OrderStatusPending, nil)

	_, err := s.Cancel(context.Background(), o.ID, "first")
	require.NoError(t, err)

	_, err = s.Cancel(context.Background(), o.ID, "second")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateAdminTracking(t *testing.T) {
	s, r := newService(t)
	o := seedOrder(t, r, models.OrderStatusProcessing, nil)

	tracking := "MX123456789"
	status := models.OrderStatusShipped
	got, err := s.UpdateAdmin(context.Background(), o.ID, &status, &tracking)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusShipped, got.Status)
	require.Equal(t, tracking, got.TrackingNumber)
}
