package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-service/models"
	"shop-service/repository"
)

type CartStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.CartItem, error)
	Upsert(ctx context.Context, userID, productID string, quantity int, now time.Time) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

type ProductLookup interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Product, error)
}

// CartService reads cart lines from the cart store and joins them with the
// catalog in application code; the two live in different databases.
type CartService struct {
	carts    CartStore
	products ProductLookup
	now      func() time.Time
}

func NewCartService(carts CartStore, products ProductLookup) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *CartService) Get(ctx context.Context, userID string) ([]models.CartLine, error) {
	items, err := s.carts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	if len(items) == 0 {
		return []models.CartLine{}, nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}
	return JoinCartItems(items, products), nil
}

// SetItem sets the quantity of a product in the cart. An existing line is
// overwritten, not incremented.
func (s *CartService) SetItem(ctx context.Context, userID, productID string, quantity int) ([]models.CartLine, error) {
	if quantity < 1 {
		return nil, Validation("Quantity must be at least 1")
	}
	product, err := s.products.FindByID(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("Product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	if quantity > product.StockQuantity {
		return nil, Validation("Insufficient stock. Only %d available.", product.StockQuantity)
	}
	if err := s.carts.Upsert(ctx, userID, productID, quantity, s.now()); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) ([]models.CartLine, error) {
	if err := s.carts.Remove(ctx, userID, productID); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *CartService) Clear(ctx context.Context, userID string) error {
	return s.carts.Clear(ctx, userID)
}

// JoinCartItems attaches product data to cart lines, keeping the cart's
// order. Lines whose product no longer exists are dropped.
func JoinCartItems(items []models.CartItem, products []models.Product) []models.CartLine {
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	lines := make([]models.CartLine, 0, len(items))
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			continue
		}
		lines = append(lines, models.CartLine{
			Product: models.CartProduct{
				ID:            p.ID,
				Name:          p.Name,
				Price:         p.Price,
				Image:         p.Image,
				StockQuantity: p.StockQuantity,
				Category:      p.Category,
			},
			Quantity: it.Quantity,
		})
	}
	return lines
}
