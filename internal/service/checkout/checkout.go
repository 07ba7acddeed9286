// Package checkout turns a cart into an order. Confirm is the only place an
// order is born: it snapshots prices, reserves stock and opens the payment in
// one transaction, so a failure anywhere leaves no trace.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/events"
	"github.com/velmart/backend/internal/logging"
	"github.com/velmart/backend/internal/metrics"
	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/repo"
	"github.com/velmart/backend/internal/service/cart"
	"github.com/velmart/backend/internal/service/inventory"
	"github.com/velmart/backend/internal/service/payment"
)

var ErrEmptyCart = fmt.Errorf("%w: cart is empty", apperr.ErrValidation)

type Service struct {
	Repo      *repo.GormRepo
	Carts     *cart.Service
	Inventory *inventory.Ledger
	Payments  *payment.Service
	Events    events.Publisher
	Metrics   *metrics.Metrics

	Shipping        ShippingPolicy
	TaxRate         decimal.Decimal
	DefaultCurrency string
}

// Input is what the client submits to price or confirm a checkout.
type Input struct {
	Identity        cart.Identity
	ShippingAddress models.Address
	BillingAddress  models.Address
	PaymentMethod   models.PaymentMethod
	Currency        string
}

type QuoteItem struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Quote is the priced cart: what the order totals will be if confirmed now.
type Quote struct {
	Items        []QuoteItem     `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Currency     string          `json:"currency"`
}

// ValidationResult carries every problem found, not just the first, so the
// client can fix them all in one pass. Warnings do not block confirmation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ConfirmResult is the client's handle on the freshly created order plus
// whatever the gateway needs them to do next.
type ConfirmResult struct {
	OrderID         uuid.UUID            `json:"order_id"`
	PaymentID       uuid.UUID            `json:"payment_id"`
	PaymentStatus   models.PaymentStatus `json:"payment_status"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	Currency        string               `json:"currency"`
	ClientSecret    string               `json:"client_secret,omitempty"`
	ApprovalURL     string               `json:"approval_url,omitempty"`
	Reference       string               `json:"reference,omitempty"`
	BankDetails     *payment.BankDetails `json:"bank_details,omitempty"`
	FailureReason   string               `json:"failure_reason,omitempty"`
	PaymentRequired bool                 `json:"payment_required"`
}

// Quote prices the current cart against live product prices and the shipping
// destination. It holds nothing.
func (s *Service) Quote(ctx context.Context, id cart.Identity, addr models.Address, currency string) (*Quote, error) {
	c, err := s.Carts.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}
	return s.price(ctx, c.Items, addr, currency)
}

// Validate checks everything Confirm will check, collecting all problems
// instead of stopping at the first.
func (s *Service) Validate(ctx context.Context, in Input) (*ValidationResult, error) {
	res := &ValidationResult{}
	add := func(format string, args ...any) {
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}

	c, err := s.Carts.GetOrCreate(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		add("cart is empty")
	}

	for _, item := range c.Items {
		p, err := s.Repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			if repo.IsNotFound(err) {
				add("product %d no longer exists", item.ProductID)
				continue
			}
			return nil, err
		}
		if !p.Active {
			add("product %q is no longer available", p.Name)
		}
		level, err := s.Inventory.GetLevel(ctx, item.ProductID)
		if err != nil && !errors.Is(err, inventory.ErrStockNotFound) {
			return nil, err
		}
		if level < item.Quantity {
			add("product %q has %d units in stock, %d requested", p.Name, level, item.Quantity)
		}
	}

	for _, missing := range missingAddressFields(in.ShippingAddress) {
		add("shipping address: %s is required", missing)
	}
	if in.BillingAddress == (models.Address{}) {
		res.Warnings = append(res.Warnings, "billing address missing; shipping address will be used")
	}

	currency := s.currencyOrDefault(in.Currency)
	if !models.SupportedCurrencies[currency] {
		add("currency %q is not supported", currency)
	}
	if in.PaymentMethod != "" {
		if _, err := s.Payments.Gateways.Select(in.PaymentMethod); err != nil {
			add("payment method %q is not supported", in.PaymentMethod)
		}
	}

	res.Valid = len(res.Errors) == 0
	return res, nil
}

// Confirm creates the order. Inside one transaction it re-reads the cart,
// snapshots every line at the current price, reserves stock and opens a
// pending payment; the cart empties in the same breath. Gateway initiation
// happens after the commit so an order is never lost to a flaky provider,
// only its first payment attempt.
func (s *Service) Confirm(ctx context.Context, in Input) (*ConfirmResult, error) {
	validation, err := s.Validate(ctx, in)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		s.countCheckout("validation_failed")
		return nil, fmt.Errorf("%w: %s", apperr.ErrValidation, strings.Join(validation.Errors, "; "))
	}

	currency := s.currencyOrDefault(in.Currency)
	billing := in.BillingAddress
	if billing == (models.Address{}) {
		billing = in.ShippingAddress
	}

	var (
		o *models.Order
		p *models.Payment
	)
	err = s.Repo.WithTx(ctx, func(tx *repo.GormRepo) error {
		c, err := findCart(ctx, tx, in.Identity)
		if err != nil {
			if repo.IsNotFound(err) {
				return ErrEmptyCart
			}
			return err
		}
		if len(c.Items) == 0 {
			return ErrEmptyCart
		}

		quote, orderItems, err := s.snapshot(ctx, tx, c.Items, in.ShippingAddress, currency)
		if err != nil {
			return err
		}

		o = &models.Order{
			ID:              uuid.New(),
			UserID:          c.UserID,
			Status:          models.OrderStatusPending,
			PaymentStatus:   models.PaymentStatusPending,
			Subtotal:        quote.Subtotal,
			TaxAmount:       quote.TaxAmount,
			ShippingCost:    quote.ShippingCost,
			DiscountAmount:  decimal.Zero,
			TotalAmount:     quote.TotalAmount,
			Currency:        currency,
			ShippingAddress: in.ShippingAddress,
			BillingAddress:  billing,
			Items:           orderItems,
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}

		p = &models.Payment{
			ID:       uuid.New(),
			OrderID:  o.ID,
			Amount:   quote.TotalAmount,
			Currency: currency,
			Method:   in.PaymentMethod,
			Status:   models.PaymentStatusPending,
		}
		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}

		return tx.DeleteCartItems(ctx, c.ID)
	})
	if err != nil {
		s.countCheckout("failed")
		return nil, err
	}

	result := &ConfirmResult{
		OrderID:         o.ID,
		PaymentID:       p.ID,
		PaymentStatus:   models.PaymentStatusPending,
		TotalAmount:     o.TotalAmount,
		Currency:        currency,
		PaymentRequired: true,
	}

	init, err := s.Payments.Initiate(ctx, p)
	if err != nil {
		logging.FromContext(ctx).Warn("checkout_payment_initiation_failed",
			"order_id", o.ID, "payment_id", p.ID, "error", err)
		s.countCheckout("gateway_error")
		result.PaymentStatus = models.PaymentStatusFailed
		result.FailureReason = "payment initiation failed; retry with a new payment"
	} else {
		result.ClientSecret = init.ClientSecret
		result.ApprovalURL = init.ApprovalURL
		result.Reference = init.Reference
		result.BankDetails = init.BankDetails
		s.countCheckout("confirmed")
	}

	s.publish(ctx, o.ID, map[string]any{
		"type":     "order_created",
		"order_id": o.ID,
		"total":    o.TotalAmount,
		"currency": currency,
	})
	return result, nil
}

// snapshot prices the cart and reserves stock line by line inside the
// caller's transaction. Any shortfall aborts the whole checkout.
func (s *Service) snapshot(ctx context.Context, tx *repo.GormRepo, items []models.CartItem, addr models.Address, currency string) (*Quote, []models.OrderItem, error) {
	quote := &Quote{Currency: currency, Subtotal: decimal.Zero}
	orderItems := make([]models.OrderItem, 0, len(items))

	for _, item := range items {
		product, err := tx.GetProduct(ctx, item.ProductID)
		if err != nil {
			if repo.IsNotFound(err) {
				return nil, nil, fmt.Errorf("%w: product %d", apperr.ErrNotFound, item.ProductID)
			}
			return nil, nil, err
		}
		if !product.Active {
			return nil, nil, fmt.Errorf("%w: product %q is not available", apperr.ErrConflict, product.Name)
		}
		if err := s.Inventory.Reserve(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, nil, err
		}

		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		quote.Subtotal = quote.Subtotal.Add(lineTotal)
		quote.Items = append(quote.Items, QuoteItem{
			ProductID: product.ID,
			Name:      product.Name,
			SKU:       product.SKU,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
			LineTotal: lineTotal,
		})
		orderItems = append(orderItems, models.OrderItem{
			ProductID:      product.ID,
			Name:           product.Name,
			SKU:            product.SKU,
			UnitPrice:      product.Price,
			Quantity:       item.Quantity,
			LineTotal:      lineTotal,
			DiscountAmount: decimal.Zero,
		})
	}

	quote.TaxAmount = quote.Subtotal.Mul(s.TaxRate).Round(2)
	quote.ShippingCost = s.Shipping.Cost(quote.Subtotal, addr)
	quote.TotalAmount = quote.Subtotal.Add(quote.TaxAmount).Add(quote.ShippingCost)
	return quote, orderItems, nil
}

// price is the read-only variant of snapshot used by Quote.
func (s *Service) price(ctx context.Context, items []models.CartItem, addr models.Address, currency string) (*Quote, error) {
	currency = s.currencyOrDefault(currency)
	quote := &Quote{Currency: currency, Subtotal: decimal.Zero}

	for _, item := range items {
		product, err := s.Repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			if repo.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		quote.Subtotal = quote.Subtotal.Add(lineTotal)
		quote.Items = append(quote.Items, QuoteItem{
			ProductID: product.ID,
			Name:      product.Name,
			SKU:       product.SKU,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
			LineTotal: lineTotal,
		})
	}

	quote.TaxAmount = quote.Subtotal.Mul(s.TaxRate).Round(2)
	quote.ShippingCost = s.Shipping.Cost(quote.Subtotal, addr)
	quote.TotalAmount = quote.Subtotal.Add(quote.TaxAmount).Add(quote.ShippingCost)
	return quote, nil
}

func (s *Service) currencyOrDefault(currency string) string {
	if currency == "" {
		return s.DefaultCurrency
	}
	return strings.ToUpper(currency)
}

func findCart(ctx context.Context, tx *repo.GormRepo, id cart.Identity) (*models.Cart, error) {
	if id.UserID != nil {
		return tx.GetCartByUser(ctx, *id.UserID)
	}
	if id.SessionToken != nil {
		return tx.GetCartBySession(ctx, *id.SessionToken)
	}
	return nil, fmt.Errorf("%w: exactly one of user id or session token required", apperr.ErrValidation)
}

func missingAddressFields(a models.Address) []string {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", a.Name},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func (s *Service) countCheckout(outcome string) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.CheckoutsTotal.WithLabelValues(outcome).Inc()
}

func (s *Service) publish(ctx context.Context, orderID uuid.UUID, event map[string]any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, events.TopicOrderEvents, orderID.String(), event); err != nil {
		logging.FromContext(ctx).Warn("checkout_event_publish_failed", "error", err)
	}
}
