package repo

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/velmart/backend/internal/models"
)

func (r *GormRepo) GetStock(ctx context.Context, productID uint) (*models.Stock, error) {
	var s models.Stock
	if err := r.DB.WithContext(ctx).First(&s, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// DecrementStock atomically subtracts qty from the product's stock. The
// guard in the WHERE clause makes concurrent reservations serialize at the
// storage layer: if available quantity is lower than qty, zero rows match
// and the reservation is reported as failed with nothing written.
func (r *GormRepo) DecrementStock(ctx context.Context, productID uint, qty int) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(
		`UPDATE stocks SET quantity = quantity - ?, updated_at = ? WHERE product_id = ? AND quantity >= ?`,
		qty, time.Now().UTC(), productID, qty,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementStock adds qty back. Safe to call without a matching reservation.
func (r *GormRepo) IncrementStock(ctx context.Context, productID uint, qty int) error {
	return r.DB.WithContext(ctx).Exec(
		`UPDATE stocks SET quantity = quantity + ?, updated_at = ? WHERE product_id = ?`,
		qty, time.Now().UTC(), productID,
	).Error
}

// UpsertStock sets the absolute stock level for a product.
func (r *GormRepo) UpsertStock(ctx context.Context, productID uint, qty int) error {
	s := models.Stock{ProductID: productID, Quantity: qty, UpdatedAt: time.Now().UTC()}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&s).Error
}
