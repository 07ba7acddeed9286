// Package inventory owns the stock table. Reserve and Release are guarded
// single-statement updates so concurrent checkouts on the same product
// serialize at the storage layer instead of racing in memory.
package inventory

import (
	"context"
	"fmt"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/events"
	"github.com/velmart/backend/internal/logging"
	"github.com/velmart/backend/internal/metrics"
	"github.com/velmart/backend/internal/repo"
)

var (
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", apperr.ErrConflict)
	ErrStockNotFound     = fmt.Errorf("%w: stock", apperr.ErrNotFound)
)

type Ledger struct {
	Repo    *repo.GormRepo
	Events  events.Publisher
	Metrics *metrics.Metrics
}

// Reserve decrements available stock for a product, failing atomically with
// ErrInsufficientStock when fewer than qty units remain. The tx argument lets
// checkout run reservations inside its order transaction; callers outside a
// transaction pass l.Repo.
func (l *Ledger) Reserve(ctx context.Context, tx *repo.GormRepo, productID uint, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be > 0", apperr.ErrValidation)
	}

	ok, err := tx.DecrementStock(ctx, productID, qty)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := tx.GetStock(ctx, productID); err != nil {
			if repo.IsNotFound(err) {
				return fmt.Errorf("%w: product %d", ErrStockNotFound, productID)
			}
			return err
		}
		if l.Metrics != nil {
			l.Metrics.ReserveFailures.Inc()
		}
		return fmt.Errorf("%w: product %d", ErrInsufficientStock, productID)
	}
	return nil
}

// Release returns qty units to the pool. It is an unconditional increment:
// releasing without a matching reservation must be safe, so cancellation
// paths can call it without bookkeeping.
func (l *Ledger) Release(ctx context.Context, tx *repo.GormRepo, productID uint, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be > 0", apperr.ErrValidation)
	}
	return tx.IncrementStock(ctx, productID, qty)
}

// SetLevel is the administrative absolute set used for restocks and
// corrections.
func (l *Ledger) SetLevel(ctx context.Context, productID uint, qty int, reason string) error {
	if qty < 0 {
		return fmt.Errorf("%w: quantity must be >= 0", apperr.ErrValidation)
	}
	if err := l.Repo.UpsertStock(ctx, productID, qty); err != nil {
		return err
	}

	if l.Events != nil {
		event := map[string]any{
			"type":       "stock_level_set",
			"product_id": productID,
			"quantity":   qty,
			"reason":     reason,
		}
		if err := l.Events.Publish(ctx, events.TopicStockEvents, fmt.Sprint(productID), event); err != nil {
			logging.FromContext(ctx).Warn("stock_event_publish_failed", "error", err)
		}
	}
	return nil
}

func (l *Ledger) GetLevel(ctx context.Context, productID uint) (int, error) {
	s, err := l.Repo.GetStock(ctx, productID)
	if err != nil {
		if repo.IsNotFound(err) {
			return 0, fmt.Errorf("%w: product %d", ErrStockNotFound, productID)
		}
		return 0, err
	}
	return s.Quantity, nil
}
