// Package webhook reconciles gateway callbacks against local payment state.
// The gateway is the source of truth for money: whatever it reports is
// applied here, exactly once, no matter how many times it delivers the event
// or in what order.
package webhook

import (
	"context"
	"time"

	"github.com/velmart/backend/internal/logging"
	"github.com/velmart/backend/internal/metrics"
	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/repo"
	"github.com/velmart/backend/internal/service/order"
	"github.com/velmart/backend/internal/service/payment"
)

// Event is a gateway callback normalized to what reconciliation needs. A
// zero Status marks an event type we record but do not act on.
type Event struct {
	ID            string
	Gateway       string
	Type          string
	ExternalRef   string
	CaptureRef    string
	Status        models.PaymentStatus
	FailureReason string
	Raw           []byte
}

type Reconciler struct {
	Repo     *repo.GormRepo
	Payments *payment.Service
	Metrics  *metrics.Metrics
}

// Apply processes one verified gateway event. It returns an error only for
// storage failures; duplicates, unknown references and stale or out-of-order
// deliveries are recorded and acknowledged, because re-delivery would not
// make them more actionable.
func (r *Reconciler) Apply(ctx context.Context, ev *Event) error {
	log := logging.FromContext(ctx)

	fresh, err := r.Repo.InsertWebhookEvent(ctx, &models.WebhookEvent{
		EventID:     ev.ID,
		Gateway:     ev.Gateway,
		EventType:   ev.Type,
		Payload:     ev.Raw,
		ProcessedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !fresh {
		log.Debug("webhook_duplicate", "gateway", ev.Gateway, "event_id", ev.ID)
		r.count(ev.Gateway, "duplicate")
		return nil
	}

	if ev.Status == "" {
		r.note(ctx, ev.ID, "event type not handled")
		r.count(ev.Gateway, "ignored")
		return nil
	}
	if ev.ExternalRef == "" {
		r.note(ctx, ev.ID, "event carries no payment reference")
		r.count(ev.Gateway, "unmatched")
		return nil
	}

	p, err := r.Repo.GetPaymentByExternalRef(ctx, ev.ExternalRef)
	if err != nil {
		if repo.IsNotFound(err) {
			log.Warn("webhook_unmatched", "gateway", ev.Gateway, "event_id", ev.ID, "ref", ev.ExternalRef)
			r.note(ctx, ev.ID, "no payment matches reference "+ev.ExternalRef)
			r.count(ev.Gateway, "unmatched")
			return nil
		}
		return err
	}

	if p.Status == ev.Status {
		r.count(ev.Gateway, "noop")
		return nil
	}
	if !order.CanTransitionPayment(p.Status, ev.Status) {
		log.Warn("webhook_stale", "gateway", ev.Gateway, "event_id", ev.ID,
			"payment_id", p.ID, "from", p.Status, "to", ev.Status)
		r.note(ctx, ev.ID, "stale transition "+string(p.Status)+" -> "+string(ev.Status))
		r.count(ev.Gateway, "stale")
		return nil
	}

	if _, err := r.Payments.Settle(ctx, p, &payment.ProcessResult{
		Status:        ev.Status,
		CaptureRef:    ev.CaptureRef,
		FailureReason: ev.FailureReason,
		Raw:           ev.Raw,
	}); err != nil {
		return err
	}

	log.Info("webhook_applied", "gateway", ev.Gateway, "event_id", ev.ID,
		"payment_id", p.ID, "status", ev.Status)
	r.count(ev.Gateway, "applied")
	return nil
}

func (r *Reconciler) note(ctx context.Context, eventID, note string) {
	err := r.Repo.DB.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Update("note", note).Error
	if err != nil {
		logging.FromContext(ctx).Error("webhook_note_failed", "event_id", eventID, "error", err)
	}
}

func (r *Reconciler) count(gateway, outcome string) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.WebhookEventsTotal.WithLabelValues(gateway, outcome).Inc()
}
