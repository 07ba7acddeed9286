package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/plutov/paypal/v4"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/models"
)

// PayPalVerifier checks a webhook delivery against PayPal. It is an
// interface because verification requires a live API round trip, which tests
// replace.
type PayPalVerifier interface {
	Verify(ctx context.Context, req *http.Request, webhookID string) (bool, error)
}

// PayPalAPIVerifier verifies through the PayPal verification endpoint.
type PayPalAPIVerifier struct {
	Client *paypal.Client
}

func (v PayPalAPIVerifier) Verify(ctx context.Context, req *http.Request, webhookID string) (bool, error) {
	res, err := v.Client.VerifyWebhookSignature(ctx, req, webhookID)
	if err != nil {
		return false, err
	}
	return res.VerificationStatus == "SUCCESS", nil
}

// PayPalParser verifies and normalizes PayPal webhook deliveries.
type PayPalParser struct {
	Verifier  PayPalVerifier
	WebhookID string
}

type paypalPayload struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		StatusDetails struct {
			Reason string `json:"reason"`
		} `json:"status_details"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (p PayPalParser) Parse(ctx context.Context, req *http.Request, body []byte) (*Event, error) {
	ok, err := p.Verifier.Verify(ctx, req, p.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("%w: paypal webhook verification: %v", apperr.ErrGateway, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: paypal webhook signature rejected", apperr.ErrValidation)
	}

	var payload paypalPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: paypal webhook payload: %v", apperr.ErrValidation, err)
	}

	out := &Event{
		ID:      payload.ID,
		Gateway: "paypal",
		Type:    payload.EventType,
		Raw:     body,
	}

	switch payload.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		out.Status = models.PaymentStatusAuthorized
		out.ExternalRef = payload.Resource.ID
	case "PAYMENT.CAPTURE.COMPLETED":
		out.Status = models.PaymentStatusCaptured
		out.CaptureRef = payload.Resource.ID
		// Captures reference the originating order when PayPal includes it;
		// the capture id itself also resolves to the payment.
		out.ExternalRef = payload.Resource.SupplementaryData.RelatedIDs.OrderID
		if out.ExternalRef == "" {
			out.ExternalRef = payload.Resource.ID
		}
	case "PAYMENT.CAPTURE.DENIED":
		out.Status = models.PaymentStatusFailed
		out.ExternalRef = payload.Resource.SupplementaryData.RelatedIDs.OrderID
		if out.ExternalRef == "" {
			out.ExternalRef = payload.Resource.ID
		}
		out.FailureReason = payload.Resource.StatusDetails.Reason
		if out.FailureReason == "" {
			out.FailureReason = "capture denied"
		}
	}

	return out, nil
}
