package checkout

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/repo"
	"github.com/velmart/backend/internal/service/cart"
	"github.com/velmart/backend/internal/service/inventory"
	"github.com/velmart/backend/internal/service/payment"
	"github.com/velmart/backend/internal/testutil"
)

func metroAddress() models.Address {
	return models.Address{
		Name:       "Ana Torres",
		Line1:      "Av. Reforma 123",
		City:       "Ciudad de Mexico",
		State:      "CDMX",
		PostalCode: "06600",
		Country:    "MX",
	}
}

func remoteAddress() models.Address {
	a := metroAddress()
	a.State = "Oaxaca"
	return a
}

func newService(t *testing.T) (*Service, *repo.GormRepo, *payment.FakeGateway) {
	r := repo.New(testutil.OpenDB(t))
	ledger := &inventory.Ledger{Repo: r}
	carts := &cart.Service{Repo: r}
	fake := &payment.FakeGateway{}
	payments := &payment.Service{
		Repo: r,
		Gateways: payment.Registry{
			models.PaymentMethodStripe:       fake,
			models.PaymentMethodBankTransfer: &payment.BankTransferGateway{},
		},
	}
	s := &Service{
		Repo:      r,
		Carts:     carts,
		Inventory: ledger,
		Payments:  payments,
		Shipping: ShippingPolicy{
			FreeThreshold: decimal.RequireFromString("999"),
			FlatRate:      decimal.RequireFromString("99"),
			Surcharge:     decimal.RequireFromString("50"),
			MetroStates:   []string{"CDMX", "Jalisco", "Nuevo Leon"},
		},
		TaxRate:         decimal.RequireFromString("0.16"),
		DefaultCurrency: "MXN",
	}
	return s, r, fake
}

func guest(token string) cart.Identity {
	return cart.Identity{SessionToken: &token}
}

func TestQuoteMath(t *testing.T) {
	s, r, _ := newService(t)
	p := testutil.SeedProduct(t, r, "Keyboard", "KB-01", "45.99", 10)
	id := guest("g1")

	_, err := s.Carts.AddItem(context.Background(), id, p.ID, 2)
	require.NoError(t, err)

	q, err := s.Quote(context.Background(), id, metroAddress(), "")
	require.NoError(t, err)
	require.True(t, q.Subtotal.Equal(decimal.RequireFromString("91.98")), "subtotal %s", q.Subtotal)
	require.True(t, q.TaxAmount.Equal(decimal.RequireFromString("14.72")), "tax %s", q.TaxAmount)
	require.True(t, q.ShippingCost.Equal(decimal.RequireFromString("99")), "shipping %s", q.ShippingCost)
	require.True(t, q.TotalAmount.Equal(decimal.RequireFromString("205.70")), "total %s", q.TotalAmount)
	require.Equal(t, "MXN", q.Currency)
}

func TestShippingPolicy(t *testing.T) {
	s, _, _ := newService(t)

	// Under threshold, metro: flat rate.
	cost := s.Shipping.Cost(decimal.RequireFromString("500"), metroAddress())
	require.True(t, cost.Equal(decimal.RequireFromString("99")))

	// Over threshold, metro: free.
	cost = s.Shipping.Cost(decimal.RequireFromString("1200"), metroAddress())
	require.True(t, cost.IsZero())

	// Over threshold, remote: the surcharge survives free shipping.
	cost = s.Shipping.Cost(decimal.RequireFromString("1200"), remoteAddress())
	require.True(t, cost.Equal(decimal.RequireFromString("50")))

	// Under threshold, remote: flat rate plus surcharge.
	cost = s.Shipping.Cost(decimal.RequireFromString("500"), remoteAddress())
	require.True(t, cost.Equal(decimal.RequireFromString("149")))
}

func TestQuoteEmptyCart(t *testing.T) {
	s, _, _ := newService(t)
	_, err := s.Quote(context.Background(), guest("empty"), metroAddress(), "")
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	s, r, _ := newService(t)
	p1 := testutil.SeedProduct(t, r, "Keyboard", "KB-01", "45.99", 1)
	p2 := testutil.SeedProduct(t, r, "Mouse", "MS-01", "19.99", 5)
	id := guest("g2")

	_, err := s.Carts.AddItem(context.Background(), id, p1.ID, 3)
	require.NoError(t, err)
	_, err = s.Carts.AddItem(context.Background(), id, p2.ID, 1)
	require.NoError(t, err)

	p2.Active = false
	require.NoError(t, r.SaveProduct(context.Background(), p2))

	res, err := s.Validate(context.Background(), Input{
		Identity:        id,
		ShippingAddress: models.Address{Name: "Ana"},
		PaymentMethod:   "cash",
		Currency:        "GBP",
	})
	require.NoError(t, err)
	require.False(t, res.Valid)

	// One pass reports the stock shortage, the inactive product, the five
	// missing address fields, the currency and the payment method.
	require.Len(t, res.Errors, 9)
}

func TestValidateCleanInput(t *testing.T) {
	s, r, _ := newService(t)
	p := testutil.SeedProduct(t, r, "Keyboard", "KB-01", "45.99", 10)
	id := guest("g3")

	_, err := s.Carts.AddItem(context.Background(), id, p.ID, 2)
	require.NoError(t, err)

	res, err := s.Validate(context.Background(), Input{
		Identity:        id,
		ShippingAddress: metroAddress(),
		PaymentMethod:   models.PaymentMethodStripe,
	})
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Empty(t, res.Errors)

	// Falling back to the shipping address is worth a warning, not an error.
	require.Contains(t, res.Warnings, "billing address missing; shipping address will be used")

	res, err = s.Validate(context.Background(), Input{
		Identity:        id,
		ShippingAddress: metroAddress(),
		BillingAddress:  metroAddress(),
		PaymentMethod:   models.PaymentMethodStripe,
	})
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Empty(t, res.Warnings)
}

func TestConfirmCreatesOrderAndClearsCart(t *testing.T) {
	s, r, fake := newService(t)
	p := testutil.SeedProduct(t, r, "Keyboard", "KB-01", "45.99", 10)
	id := guest("g4")

	_, err := s.Carts.AddItem(context.Background(), id, p.ID, 2)
	require.NoError(t, err)

	res, err := s.Confirm(context.Background(), Input{
		Identity:        id,
		ShippingAddress: metroAddress(),
		PaymentMethod:   models.PaymentMethodStripe,
	})
	require.NoError(t, err)
	require.Equal(t, 1, fake.InitiateCalls)
	require.NotEmpty(t, res.ClientSecret)
	require.True(t, res.TotalAmount.Equal(decimal.RequireFromString("205.70")))

	o, err := r.GetOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, o.Status)
	require.Equal(t, models.PaymentStatusPending, o.PaymentStatus)
	require.Len(t, o.Items, 1)
	require.Equal(t, "KB-01", o.Items[0].SKU)
	require.True(t, o.Items[0].UnitPrice.Equal(decimal.RequireFromString("45.99")))

	pay, err := r.GetPayment(context.Background(), res.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPending, pay.Status)
	require.NotNil(t, pay.ExternalRef)

	stock, err := r.GetStock(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 8, stock.Quantity)

	crt, err := s.Carts.GetOrCreate(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, crt.Items)
}

func TestConfirmSnapshotsPriceAtConfirmTime(t *testing.T) {
	s, r, _ := newService(t)
	p := testutil.SeedProduct(t, r, "Keyboard", "KB-01", "45.99", 10)
	id := guest("g5")

	_, err := s.Carts.AddItem(context.Background(), id, p.ID, 1)
	require.NoError(t, err)

	res, err := s.Confirm(context.Background(), Input{
		Identity:        id,
		ShippingAddress: metroAddress(),
		PaymentMethod:   models.PaymentMethodStripe,
	})
	require.NoError(t, err)

	// A later price change must not touch the snapshot.
	p.Price = decimal.RequireFromString("60.00")
	require.NoError(t, r.SaveProduct(context.Background(), p))

	o, err := r.GetOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.True(t, o.Items[0].UnitPrice.Equal(decimal.RequireFromString("45.99")))
}

func TestConfirmIsAtomicOnStockShortage(t *testing.T) {
	s, r, _ := newService(t)
	inStock := testutil.SeedProduct(t, r, "Keyboard", "KB-01", "45.99", 10)
	scarce := testutil.SeedProduct(t, r, "Limited", "LM-01", "99.00", 1)
	id := guest("g6")

	_, err := s.Carts.AddItem(context.Background(), id, inStock.ID, 2)
	require.NoError(t, err)
	_, err = s.Carts.AddItem(context.Background(), id, scarce.ID, 1)
	require.NoError(t, err)

	// The shortage appears between validation and confirm.
	ok, err := r.DecrementStock(context.Background(), scarce.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Confirm(context.Background(), Input{
		Identity:        id,
		ShippingAddress: metroAddress(),
		PaymentMethod:   models.PaymentMethodStripe,
	})
	require.Error(t, err)

	// Nothing escaped the rollback: no orders, stock untouched, cart intact.
	var count int64
	require.NoError(t, r.DB.Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count)

	stock, err := r.GetStock(context.Background(), inStock.ID)
	require.NoError(t, err)
	require.Equal(t, 10, stock.Quantity)

	crt, err := s.Carts.GetOrCreate(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, crt.Items, 2)
}

func TestConfirmEmptyCart(t *testing.T) {
	s, _, _ := newService(t)
	_, err := s.Confirm(context.Background(), Input{
		Identity:        guest("g7"),
		ShippingAddress: metroAddress(),
		PaymentMethod:   models.PaymentMethodStripe,
	})
	require.Error(t, err)
}

func TestConfirmBankTransferReturnsReference(t *testing.T) {
	s, r, _ := newService(t)
	p := testutil.SeedProduct(t, r, "Keyboard", "KB-01", "45.99", 10)
	id := guest("g8")

	_, err := s.Carts.AddItem(context.Background(), id, p.ID, 1)
	require.NoError(t, err)

	res, err := s.Confirm(context.Background(), Input{
		Identity:        id,
		ShippingAddress: metroAddress(),
		PaymentMethod:   models.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPending, res.PaymentStatus)
	require.NotEmpty(t, res.Reference)
	require.NotNil(t, res.BankDetails)
}

func TestConfirmSurvivesGatewayInitiationFailure(t *testing.T) {
	s, r, fake := newService(t)
	fake.InitiateErr = payment.GatewayTimeout()
	p := testutil.SeedProduct(t, r, "Keyboard", "KB-01", "45.99", 10)
	id := guest("g9")

	_, err := s.Carts.AddItem(context.Background(), id, p.ID, 1)
	require.NoError(t, err)

	res, err := s.Confirm(context.Background(), Input{
		Identity:        id,
		ShippingAddress: metroAddress(),
		PaymentMethod:   models.PaymentMethodStripe,
	})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, res.PaymentStatus)
	require.NotEmpty(t, res.FailureReason)

	// The order survives for a retry; its payment is marked failed.
	o, err := r.GetOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, o.Status)

	pay, err := r.GetPayment(context.Background(), res.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, pay.Status)
}
