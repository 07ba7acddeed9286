// Package product is the catalog: what is for sale, at what price, and
// whether it is currently offered.
package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/repo"
	"github.com/velmart/backend/internal/service/inventory"
	"github.com/velmart/backend/internal/util"
)

var ErrProductNotFound = fmt.Errorf("%w: product", apperr.ErrNotFound)

type Service struct {
	Repo      *repo.GormRepo
	Inventory *inventory.Ledger
}

type CreateInput struct {
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	InitialStock int             `json:"initial_stock"`
}

type UpdateInput struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Active      *bool            `json:"active,omitempty"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Product, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}
	if strings.TrimSpace(in.SKU) == "" {
		return nil, fmt.Errorf("%w: sku is required", apperr.ErrValidation)
	}
	if in.Price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: price must be positive", apperr.ErrValidation)
	}
	if in.InitialStock < 0 {
		return nil, fmt.Errorf("%w: initial stock must be >= 0", apperr.ErrValidation)
	}

	p := &models.Product{
		Name:        in.Name,
		SKU:         in.SKU,
		Description: in.Description,
		Price:       in.Price,
		Active:      true,
	}
	if err := s.Repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	if err := s.Inventory.SetLevel(ctx, p.ID, in.InitialStock, "initial stock"); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*models.Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		if in.Price.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: price must be positive", apperr.ErrValidation)
		}
		p.Price = *in.Price
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	if err := s.Repo.SaveProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Product, error) {
	p, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, fmt.Errorf("%w %d", ErrProductNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool, limit, offset int) ([]models.Product, error) {
	limit, offset = util.Pagination(limit, offset)
	return s.Repo.ListProducts(ctx, activeOnly, limit, offset)
}
