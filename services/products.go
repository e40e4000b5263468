package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shop-service/models"
	"shop-service/repository"
)

type ProductStore interface {
	List(ctx context.Context) ([]models.Product, error)
	FindByID(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, id string) error
}

type ProductService struct {
	products ProductStore
	now      func() time.Time
}

func NewProductService(products ProductStore) *ProductService {
	return &ProductService{
		products: products,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *ProductService) List(ctx context.Context) ([]models.Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *ProductService) Get(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.products.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("Product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	return p, nil
}

// Create stores a new product. image is the public path of an uploaded
// file, or empty.
func (s *ProductService) Create(ctx context.Context, req models.ProductRequest, image string) (*models.Product, error) {
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return nil, Validation("Product name is required")
	}
	if req.Price == nil {
		return nil, Validation("Product price is required")
	}
	now := s.now()
	p := &models.Product{
		ID:        uuid.NewString(),
		Category:  models.DefaultCategory,
		Image:     image,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyProductRequest(p, req); err != nil {
		return nil, err
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update changes the fields present in req. The image is replaced only
// when a new one was uploaded.
func (s *ProductService) Update(ctx context.Context, id string, req models.ProductRequest, image string) (*models.Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyProductRequest(p, req); err != nil {
		return nil, err
	}
	if image != "" {
		p.Image = image
	}
	p.UpdatedAt = s.now()
	if err := s.products.Update(ctx, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NotFound("Product not found")
		}
		return nil, err
	}
	return p, nil
}

func (s *ProductService) Delete(ctx context.Context, id string) error {
	err := s.products.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("Product not found")
	}
	return err
}

func applyProductRequest(p *models.Product, req models.ProductRequest) error {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Price != nil {
		price, err := parsePrice(*req.Price)
		if err != nil {
			return err
		}
		p.Price = price
	}
	if req.Category != nil && strings.TrimSpace(*req.Category) != "" {
		p.Category = strings.TrimSpace(*req.Category)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return Validation("Stock quantity must not be negative")
		}
		if *req.StockQuantity > models.MaxQuantity {
			return Validation("Stock quantity must not exceed %d", models.MaxQuantity)
		}
		p.StockQuantity = *req.StockQuantity
	}
	return nil
}

func parsePrice(n json.Number) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, Validation("Invalid price: %s", n.String())
	}
	if price.IsNegative() {
		return decimal.Zero, Validation("Price must not be negative")
	}
	return price.Round(2), nil
}
