// Package repo contains the gorm persistence layer. Services never touch
// *gorm.DB directly except through these methods.
package repo

import (
	"context"

	"gorm.io/gorm"
)

type GormRepo struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}

// WithTx runs fn inside a single database transaction. The callback receives
// a repo bound to the transaction so multi-entity operations (order creation,
// stock reservation, cart clearing) commit or roll back as one unit.
func (r *GormRepo) WithTx(ctx context.Context, fn func(tx *GormRepo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepo{DB: tx})
	})
}
