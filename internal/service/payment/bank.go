package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/velmart/backend/internal/models"
)

// BankTransferGateway is the offline rail: initiation hands the customer a
// transfer reference and account details, and the payment stays pending until
// back office staff confirm the deposit. There is nothing to process and no
// API to refund through.
type BankTransferGateway struct {
	Details BankDetails
}

func (g *BankTransferGateway) Initiate(ctx context.Context, args InitiateArgs) (*InitiateResult, error) {
	ref := transferReference()
	details := g.Details
	return &InitiateResult{
		ExternalRef: ref,
		Reference:   ref,
		BankDetails: &details,
		Status:      models.PaymentStatusPending,
	}, nil
}

func (g *BankTransferGateway) Process(ctx context.Context, p *models.Payment, args ProcessArgs) (*ProcessResult, error) {
	// Nothing happens online; confirmation arrives through the manual
	// capture endpoint once the deposit is reconciled.
	return &ProcessResult{Status: models.PaymentStatusPending}, nil
}

// transferReference builds the short code customers put in the wire subject
// line, e.g. BT-3F2A9C8B.
func transferReference() string {
	id := uuid.New().String()
	return "BT-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8])
}
