package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/refund"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/models"
)

// StripeGateway drives card payments through Stripe payment intents. The
// package-level stripe.Key is set once at startup.
type StripeGateway struct{}

func (StripeGateway) Initiate(ctx context.Context, args InitiateArgs) (*InitiateResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(args.Amount)),
		Currency: stripe.String(strings.ToLower(args.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"payment_id": args.PaymentID.String(),
			"order_id":   args.OrderID.String(),
		},
	}
	params.Context = ctx

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe payment intent: %v", apperr.ErrGateway, err)
	}
	return &InitiateResult{
		ExternalRef:  intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       models.PaymentStatusPending,
	}, nil
}

func (StripeGateway) Process(ctx context.Context, p *models.Payment, args ProcessArgs) (*ProcessResult, error) {
	if p.ExternalRef == nil {
		return nil, fmt.Errorf("%w: payment has no payment intent", apperr.ErrConflict)
	}
	if args.PaymentMethodToken == "" {
		return nil, fmt.Errorf("%w: payment_method_token is required", apperr.ErrValidation)
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(args.PaymentMethodToken),
	}
	params.Context = ctx

	intent, err := paymentintent.Confirm(*p.ExternalRef, params)
	if err != nil {
		// Card declines come back as stripe.Error with a card_error type;
		// those are final. Anything else is ambiguous and must leave the
		// payment pending.
		var sErr *stripe.Error
		if errors.As(err, &sErr) && sErr.Type == stripe.ErrorTypeCard {
			return &ProcessResult{
				Status:        models.PaymentStatusFailed,
				FailureReason: declineReason(sErr),
			}, nil
		}
		return nil, fmt.Errorf("%w: stripe confirm: %v", apperr.ErrGateway, err)
	}

	raw, _ := json.Marshal(intent)
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res := &ProcessResult{Status: models.PaymentStatusCaptured, Raw: raw}
		if intent.LatestCharge != nil {
			res.CaptureRef = intent.LatestCharge.ID
		}
		return res, nil
	case stripe.PaymentIntentStatusRequiresCapture:
		return &ProcessResult{Status: models.PaymentStatusAuthorized, Raw: raw}, nil
	case stripe.PaymentIntentStatusCanceled:
		return &ProcessResult{Status: models.PaymentStatusCancelled, Raw: raw}, nil
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return &ProcessResult{
			Status:        models.PaymentStatusFailed,
			FailureReason: lastPaymentError(intent),
			Raw:           raw,
		}, nil
	default:
		// requires_action, processing: webhooks will finish the job.
		return &ProcessResult{Status: models.PaymentStatusPending, Raw: raw}, nil
	}
}

func (StripeGateway) Refund(ctx context.Context, p *models.Payment, amount decimal.Decimal, reason string) (string, error) {
	if p.ExternalRef == nil {
		return "", fmt.Errorf("%w: payment has no payment intent", apperr.ErrConflict)
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(*p.ExternalRef),
		Amount:        stripe.Int64(toMinorUnits(amount)),
		Reason:        stripe.String("requested_by_customer"),
	}
	params.Context = ctx

	ref, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: stripe refund: %v", apperr.ErrGateway, err)
	}
	return ref.ID, nil
}

func declineReason(sErr *stripe.Error) string {
	if sErr.DeclineCode != "" {
		return string(sErr.DeclineCode)
	}
	if sErr.Code != "" {
		return string(sErr.Code)
	}
	return sErr.Msg
}

func lastPaymentError(intent *stripe.PaymentIntent) string {
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		return intent.LastPaymentError.Msg
	}
	return "payment method declined"
}

// toMinorUnits converts a major-unit decimal amount to the integer minor
// units gateways expect (91.98 -> 9198).
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
