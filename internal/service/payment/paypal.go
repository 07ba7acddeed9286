package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/models"
)

// PayPalGateway drives payments through the PayPal orders API: an order is
// created at initiation, the buyer approves it on PayPal's side, and Process
// captures the approved order.
type PayPalGateway struct {
	Client *paypal.Client
}

func NewPayPalGateway(clientID, secret, apiBase string) (*PayPalGateway, error) {
	client, err := paypal.NewClient(clientID, secret, apiBase)
	if err != nil {
		return nil, err
	}
	return &PayPalGateway{Client: client}, nil
}

func (g *PayPalGateway) Initiate(ctx context.Context, args InitiateArgs) (*InitiateResult, error) {
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: args.OrderID.String(),
		CustomID:    args.PaymentID.String(),
		Amount: &paypal.PurchaseUnitAmount{
			Currency: args.Currency,
			Value:    args.Amount.StringFixed(2),
		},
	}}

	ppOrder, err := g.Client.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: paypal create order: %v", apperr.ErrGateway, err)
	}

	res := &InitiateResult{
		ExternalRef: ppOrder.ID,
		Status:      models.PaymentStatusPending,
	}
	for _, link := range ppOrder.Links {
		if link.Rel == "approve" {
			res.ApprovalURL = link.Href
			break
		}
	}
	return res, nil
}

func (g *PayPalGateway) Process(ctx context.Context, p *models.Payment, args ProcessArgs) (*ProcessResult, error) {
	ref := args.PayPalOrderID
	if ref == "" && p.ExternalRef != nil {
		ref = *p.ExternalRef
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: paypal_order_id is required", apperr.ErrValidation)
	}

	capture, err := g.Client.CaptureOrder(ctx, ref, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, fmt.Errorf("%w: paypal capture: %v", apperr.ErrGateway, err)
	}

	raw, _ := json.Marshal(capture)
	switch capture.Status {
	case "COMPLETED":
		res := &ProcessResult{Status: models.PaymentStatusCaptured, Raw: raw}
		for _, unit := range capture.PurchaseUnits {
			if unit.Payments == nil {
				continue
			}
			for _, c := range unit.Payments.Captures {
				res.CaptureRef = c.ID
				break
			}
		}
		return res, nil
	case "DECLINED", "VOIDED":
		return &ProcessResult{
			Status:        models.PaymentStatusFailed,
			FailureReason: "paypal capture " + capture.Status,
			Raw:           raw,
		}, nil
	default:
		// PENDING and friends resolve through webhooks.
		return &ProcessResult{Status: models.PaymentStatusPending, Raw: raw}, nil
	}
}

func (g *PayPalGateway) Refund(ctx context.Context, p *models.Payment, amount decimal.Decimal, reason string) (string, error) {
	if p.CaptureRef == nil {
		return "", fmt.Errorf("%w: payment has no capture to refund", apperr.ErrConflict)
	}
	res, err := g.Client.RefundCapture(ctx, *p.CaptureRef, paypal.RefundCaptureRequest{
		Amount: &paypal.Money{
			Currency: p.Currency,
			Value:    amount.StringFixed(2),
		},
		NoteToPayer: reason,
	})
	if err != nil {
		return "", fmt.Errorf("%w: paypal refund: %v", apperr.ErrGateway, err)
	}
	return res.ID, nil
}
