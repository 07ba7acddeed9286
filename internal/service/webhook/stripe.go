package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v83"
	stripewebhook "github.com/stripe/stripe-go/v83/webhook"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/models"
)

// StripeParser verifies and normalizes Stripe webhook deliveries. A bad
// signature fails closed; nothing unsigned ever reaches the reconciler.
type StripeParser struct {
	Secret string
}

func (p StripeParser) Parse(payload []byte, signature string) (*Event, error) {
	// The account's webhook API version rarely matches the SDK's pinned one;
	// the signature check is what matters here.
	event, err := stripewebhook.ConstructEventWithOptions(payload, signature, p.Secret,
		stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: stripe signature: %v", apperr.ErrValidation, err)
	}

	out := &Event{
		ID:      event.ID,
		Gateway: "stripe",
		Type:    string(event.Type),
		Raw:     payload,
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed",
		"payment_intent.canceled", "payment_intent.amount_capturable_updated":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("%w: stripe payment intent payload: %v", apperr.ErrValidation, err)
		}
		out.ExternalRef = intent.ID

		switch event.Type {
		case "payment_intent.succeeded":
			out.Status = models.PaymentStatusCaptured
			if intent.LatestCharge != nil {
				out.CaptureRef = intent.LatestCharge.ID
			}
		case "payment_intent.amount_capturable_updated":
			out.Status = models.PaymentStatusAuthorized
		case "payment_intent.payment_failed":
			out.Status = models.PaymentStatusFailed
			if intent.LastPaymentError != nil {
				out.FailureReason = intent.LastPaymentError.Msg
			}
		case "payment_intent.canceled":
			out.Status = models.PaymentStatusCancelled
		}
	}
	// Other event types pass through with no status and are recorded only.

	return out, nil
}
