package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shop-service/models"
	"shop-service/repository"
)

type ReviewStore interface {
	Create(ctx context.Context, rv *models.Review) error
	Update(ctx context.Context, rv *models.Review) error
	FindByID(ctx context.Context, id string) (*models.Review, error)
	ExistsForUser(ctx context.Context, userID, productID string) (bool, error)
	ListByProduct(ctx context.Context, productID string) ([]models.Review, error)
	ListByUser(ctx context.Context, userID string) ([]models.Review, error)
}

type PurchaseVerifier interface {
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}

type ReviewService struct {
	reviews   ReviewStore
	products  ProductLookup
	purchases PurchaseVerifier
	now       func() time.Time
}

func NewReviewService(reviews ReviewStore, products ProductLookup, purchases PurchaseVerifier) *ReviewService {
	return &ReviewService{
		reviews:   reviews,
		products:  products,
		purchases: purchases,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ReviewService) ListByProduct(ctx context.Context, productID string) ([]models.Review, error) {
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list product reviews: %w", err)
	}
	return reviews, nil
}

func (s *ReviewService) ListByUser(ctx context.Context, userID string) ([]models.Review, error) {
	reviews, err := s.reviews.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user reviews: %w", err)
	}
	return reviews, nil
}

// Create adds the user's review of a product. A user reviews a product at
// most once; the verified flag is fixed at creation time.
func (s *ReviewService) Create(ctx context.Context, userID, productID string, req models.ReviewRequest, image string) (*models.Review, error) {
	if err := validateReview(req); err != nil {
		return nil, err
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NotFound("Product not found")
		}
		return nil, fmt.Errorf("find product: %w", err)
	}
	exists, err := s.reviews.ExistsForUser(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("check existing review: %w", err)
	}
	if exists {
		return nil, Conflict("You have already reviewed this product")
	}
	verified, err := s.purchases.HasPurchased(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("verify purchase: %w", err)
	}

	now := s.now()
	rv := &models.Review{
		ID:        uuid.NewString(),
		ProductID: productID,
		UserID:    userID,
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
		Image:     image,
		Verified:  verified,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reviews.Create(ctx, rv); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, Conflict("You have already reviewed this product")
		}
		return nil, err
	}
	return s.reload(ctx, rv.ID)
}

// Update lets a user change their own review.
func (s *ReviewService) Update(ctx context.Context, userID, productID, reviewID string, req models.ReviewRequest, image string) (*models.Review, error) {
	if err := validateReview(req); err != nil {
		return nil, err
	}
	rv, err := s.reviews.FindByID(ctx, reviewID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && rv.ProductID != productID) {
		return nil, NotFound("Review not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find review: %w", err)
	}
	if rv.UserID != userID {
		return nil, Forbidden("Not authorized to update this review")
	}

	rv.Rating = req.Rating
	rv.Comment = strings.TrimSpace(req.Comment)
	if image != "" {
		rv.Image = image
	}
	rv.UpdatedAt = s.now()
	if err := s.reviews.Update(ctx, rv); err != nil {
		return nil, err
	}
	return s.reload(ctx, rv.ID)
}

func (s *ReviewService) reload(ctx context.Context, id string) (*models.Review, error) {
	rv, err := s.reviews.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload review: %w", err)
	}
	return rv, nil
}

func validateReview(req models.ReviewRequest) error {
	if req.Rating < 1 || req.Rating > 5 {
		return Validation("Rating must be between 1 and 5")
	}
	if strings.TrimSpace(req.Comment) == "" {
		return Validation("Comment is required")
	}
	return nil
}
