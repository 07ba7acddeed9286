package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/events"
	"github.com/velmart/backend/internal/logging"
	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/repo"
)

var (
	ErrProductNotFound    = fmt.Errorf("%w: product", apperr.ErrNotFound)
	ErrProductUnavailable = fmt.Errorf("%w: product is not available", apperr.ErrConflict)
	ErrItemNotFound       = fmt.Errorf("%w: cart item", apperr.ErrNotFound)
)

// Identity names the owner of a cart: a registered user or a guest session.
// Exactly one of the two must be set.
type Identity struct {
	UserID       *uint
	SessionToken *string
}

func (i Identity) Valid() bool {
	return (i.UserID != nil) != (i.SessionToken != nil && *i.SessionToken != "")
}

type Totals struct {
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type Service struct {
	Repo   *repo.GormRepo
	Events events.Publisher
}

// GetOrCreate returns the identity's cart, creating an empty one on first
// interaction.
func (s *Service) GetOrCreate(ctx context.Context, id Identity) (*models.Cart, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: exactly one of user id or session token required", apperr.ErrValidation)
	}

	cart, err := s.find(ctx, id)
	if err == nil {
		return cart, nil
	}
	if !repo.IsNotFound(err) {
		return nil, err
	}

	cart = &models.Cart{ID: uuid.New(), UserID: id.UserID, SessionToken: id.SessionToken}
	if err := s.Repo.CreateCart(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// AddItem puts qty units of a product into the cart. If the product is
// already present the quantity is additive, not replaced.
func (s *Service) AddItem(ctx context.Context, id Identity, productID uint, qty int) (*models.CartItem, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be >= 1", apperr.ErrValidation)
	}

	product, err := s.Repo.GetProduct(ctx, productID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, fmt.Errorf("%w %d", ErrProductNotFound, productID)
		}
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, product.Name)
	}

	cart, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}

	item, err := s.Repo.FindCartItem(ctx, cart.ID, productID)
	switch {
	case err == nil:
		item.Quantity += qty
		if err := s.Repo.SaveCartItem(ctx, item); err != nil {
			return nil, err
		}
	case repo.IsNotFound(err):
		item = &models.CartItem{CartID: cart.ID, ProductID: productID, Quantity: qty}
		if err := s.Repo.CreateCartItem(ctx, item); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := s.Repo.TouchCart(ctx, cart.ID); err != nil {
		return nil, err
	}
	s.publish(ctx, cart.ID, map[string]any{
		"type":       "cart_item_added",
		"cart_id":    cart.ID,
		"product_id": productID,
		"quantity":   item.Quantity,
	})
	return item, nil
}

// UpdateItem replaces the quantity of an existing cart item.
func (s *Service) UpdateItem(ctx context.Context, id Identity, productID uint, qty int) (*models.CartItem, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be >= 1", apperr.ErrValidation)
	}

	cart, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}

	item, err := s.Repo.FindCartItem(ctx, cart.ID, productID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, fmt.Errorf("%w: product %d", ErrItemNotFound, productID)
		}
		return nil, err
	}

	item.Quantity = qty
	if err := s.Repo.SaveCartItem(ctx, item); err != nil {
		return nil, err
	}
	if err := s.Repo.TouchCart(ctx, cart.ID); err != nil {
		return nil, err
	}
	s.publish(ctx, cart.ID, map[string]any{
		"type":       "cart_item_updated",
		"cart_id":    cart.ID,
		"product_id": productID,
		"quantity":   qty,
	})
	return item, nil
}

// RemoveItem deletes a product from the cart; removing an absent product is
// a no-op.
func (s *Service) RemoveItem(ctx context.Context, id Identity, productID uint) error {
	cart, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteCartItem(ctx, cart.ID, productID); err != nil {
		return err
	}
	if err := s.Repo.TouchCart(ctx, cart.ID); err != nil {
		return err
	}
	s.publish(ctx, cart.ID, map[string]any{
		"type":       "cart_item_removed",
		"cart_id":    cart.ID,
		"product_id": productID,
	})
	return nil
}

// Clear empties the cart. Idempotent.
func (s *Service) Clear(ctx context.Context, id Identity) error {
	cart, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteCartItems(ctx, cart.ID); err != nil {
		return err
	}
	if err := s.Repo.TouchCart(ctx, cart.ID); err != nil {
		return err
	}
	s.publish(ctx, cart.ID, map[string]any{"type": "cart_cleared", "cart_id": cart.ID})
	return nil
}

// Totals sums quantities and amounts at the current product price. Cart
// prices float until checkout; only order items lock a price in.
func (s *Service) Totals(ctx context.Context, id Identity) (*Totals, error) {
	cart, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}

	t := &Totals{TotalAmount: decimal.Zero}
	for _, item := range cart.Items {
		product, err := s.Repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			if repo.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		t.ItemCount += item.Quantity
		t.TotalAmount = t.TotalAmount.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return t, nil
}

func (s *Service) find(ctx context.Context, id Identity) (*models.Cart, error) {
	if id.UserID != nil {
		return s.Repo.GetCartByUser(ctx, *id.UserID)
	}
	return s.Repo.GetCartBySession(ctx, *id.SessionToken)
}

func (s *Service) publish(ctx context.Context, cartID uuid.UUID, event map[string]any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, events.TopicCartEvents, cartID.String(), event); err != nil {
		logging.FromContext(ctx).Warn("cart_event_publish_failed", "error", err)
	}
}
