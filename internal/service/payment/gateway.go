package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/models"
)

var (
	ErrPaymentNotFound    = fmt.Errorf("%w: payment", apperr.ErrNotFound)
	ErrUnsupportedMethod  = fmt.Errorf("%w: unsupported payment method", apperr.ErrValidation)
	ErrRefundExceedsTotal = fmt.Errorf("%w: refund amount exceeds captured amount", apperr.ErrValidation)
	ErrNotRefundable      = fmt.Errorf("%w: payment is not refundable", apperr.ErrConflict)
)

// InitiateArgs carries everything a gateway needs to open a payment on its
// side.
type InitiateArgs struct {
	PaymentID uuid.UUID
	OrderID   uuid.UUID
	Amount    decimal.Decimal
	Currency  string
}

// InitiateResult is what the client needs to continue the payment. Which
// fields are set depends on the gateway: Stripe returns a client secret,
// PayPal an approval URL, bank transfer a reference and account details.
type InitiateResult struct {
	ExternalRef  string
	ClientSecret string
	ApprovalURL  string
	Reference    string
	BankDetails  *BankDetails
	Status       models.PaymentStatus
}

type BankDetails struct {
	BankName    string `json:"bank_name"`
	Account     string `json:"account"`
	Beneficiary string `json:"beneficiary"`
}

// ProcessArgs identifies the instrument or approval the client obtained.
type ProcessArgs struct {
	PaymentMethodToken string
	PayPalOrderID      string
}

// ProcessResult reports what the gateway decided. A decline is a successful
// call with Status failed; transport problems and timeouts surface as errors
// from Process itself and leave the payment pending.
type ProcessResult struct {
	Status        models.PaymentStatus
	CaptureRef    string
	FailureReason string
	Raw           []byte
}

// Gateway is the provider abstraction. Initiate opens the payment on the
// provider side; Process drives it to a final state.
type Gateway interface {
	Initiate(ctx context.Context, args InitiateArgs) (*InitiateResult, error)
	Process(ctx context.Context, p *models.Payment, args ProcessArgs) (*ProcessResult, error)
}

// RefundProvider is implemented by gateways that can push money back through
// their API. Gateways without it (bank transfer) get manual refunds.
type RefundProvider interface {
	Refund(ctx context.Context, p *models.Payment, amount decimal.Decimal, reason string) (externalRef string, err error)
}

// Registry maps payment methods to their gateway adapters.
type Registry map[models.PaymentMethod]Gateway

func (r Registry) Select(method models.PaymentMethod) (Gateway, error) {
	gw, ok := r[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	return gw, nil
}
