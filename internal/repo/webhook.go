package repo

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/velmart/backend/internal/models"
)

// InsertWebhookEvent records a gateway event keyed by its gateway-assigned
// id. Returns false when the event was already recorded, which is how
// duplicate webhook deliveries are detected.
func (r *GormRepo) InsertWebhookEvent(ctx context.Context, ev *models.WebhookEvent) (bool, error) {
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
