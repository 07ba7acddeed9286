package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/models"
)

// FakeGateway is a scriptable gateway for tests. Zero value behaves like a
// gateway that authorizes initiation and captures on Process.
type FakeGateway struct {
	InitiateErr   error
	ProcessErr    error
	DeclineReason string
	CaptureRef    string
	RefundErr     error
	RefundRef     string

	InitiateCalls int
	ProcessCalls  int
	RefundCalls   int
}

func (f *FakeGateway) Initiate(ctx context.Context, args InitiateArgs) (*InitiateResult, error) {
	f.InitiateCalls++
	if f.InitiateErr != nil {
		return nil, f.InitiateErr
	}
	return &InitiateResult{
		ExternalRef:  "fake_" + args.PaymentID.String(),
		ClientSecret: "secret_" + args.PaymentID.String(),
		Status:       models.PaymentStatusPending,
	}, nil
}

func (f *FakeGateway) Process(ctx context.Context, p *models.Payment, args ProcessArgs) (*ProcessResult, error) {
	f.ProcessCalls++
	if f.ProcessErr != nil {
		return nil, f.ProcessErr
	}
	if f.DeclineReason != "" {
		return &ProcessResult{Status: models.PaymentStatusFailed, FailureReason: f.DeclineReason}, nil
	}
	ref := f.CaptureRef
	if ref == "" {
		ref = "cap_" + p.ID.String()
	}
	return &ProcessResult{Status: models.PaymentStatusCaptured, CaptureRef: ref}, nil
}

func (f *FakeGateway) Refund(ctx context.Context, p *models.Payment, amount decimal.Decimal, reason string) (string, error) {
	f.RefundCalls++
	if f.RefundErr != nil {
		return "", f.RefundErr
	}
	if f.RefundRef != "" {
		return f.RefundRef, nil
	}
	return fmt.Sprintf("re_%s", p.ID), nil
}

// GatewayTimeout mimics a transport failure for ambiguous-outcome tests.
func GatewayTimeout() error {
	return fmt.Errorf("%w: connection timed out", apperr.ErrGateway)
}
