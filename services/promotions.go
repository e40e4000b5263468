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

const (
	msgInvalidPromotion = "Invalid promotion code"
	msgExpiredPromotion = "This promotion has expired"
)

type PromotionStore interface {
	List(ctx context.Context) ([]models.Promotion, error)
	FindByID(ctx context.Context, id string) (*models.Promotion, error)
	FindByCode(ctx context.Context, code string) (*models.Promotion, error)
	Update(ctx context.Context, p *models.Promotion) error
	Delete(ctx context.Context, id string) error
}

type PromotionService struct {
	tx         repository.Transactor
	promotions PromotionStore
	now        func() time.Time
}

func NewPromotionService(tx repository.Transactor, promotions PromotionStore) *PromotionService {
	return &PromotionService{
		tx:         tx,
		promotions: promotions,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeCode is the canonical form promotion codes are stored and
// looked up in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// List returns every promotion, or only the currently valid ones when
// activeOnly is set.
func (s *PromotionService) List(ctx context.Context, activeOnly bool) ([]models.Promotion, error) {
	all, err := s.promotions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	if !activeOnly {
		return all, nil
	}
	now := s.now()
	valid := make([]models.Promotion, 0, len(all))
	for _, p := range all {
		if p.ValidAt(now) {
			valid = append(valid, p)
		}
	}
	return valid, nil
}

func (s *PromotionService) Get(ctx context.Context, id string) (*models.Promotion, error) {
	p, err := s.promotions.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("Promotion not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find promotion: %w", err)
	}
	return p, nil
}

// Create stores the promotion and queues a promotion.created event in the
// same transaction.
func (s *PromotionService) Create(ctx context.Context, req models.CreatePromotionRequest) (*models.Promotion, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, Validation("Promotion code is required")
	}
	if req.DiscountPercent < 1 || req.DiscountPercent > 100 {
		return nil, Validation("discountPercent must be between 1 and 100")
	}
	if _, err := s.promotions.FindByCode(ctx, code); err == nil {
		return nil, Conflict("Promotion code already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup promotion code: %w", err)
	}

	now := s.now()
	p := &models.Promotion{
		ID:              uuid.NewString(),
		Code:            code,
		DiscountPercent: req.DiscountPercent,
		ExpiryDate:      req.ExpiryDate,
		Active:          true,
		Description:     req.Description,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Active != nil {
		p.Active = *req.Active
	}

	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertPromotion(ctx, p); err != nil {
			return err
		}
		return tx.AddOutboxEvent(ctx, models.Event{
			Type:        models.EventPromotionCreated,
			PromotionID: p.ID,
			Occurred:    now,
		})
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, Conflict("Promotion code already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("create promotion: %w", err)
	}
	return p, nil
}

func (s *PromotionService) Update(ctx context.Context, id string, req models.UpdatePromotionRequest) (*models.Promotion, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Code != nil {
		code := NormalizeCode(*req.Code)
		if code == "" {
			return nil, Validation("Promotion code must not be empty")
		}
		if code != p.Code {
			other, err := s.promotions.FindByCode(ctx, code)
			if err == nil && other.ID != p.ID {
				return nil, Conflict("Promotion code already exists")
			}
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("lookup promotion code: %w", err)
			}
			p.Code = code
		}
	}
	if req.DiscountPercent != nil {
		if *req.DiscountPercent < 1 || *req.DiscountPercent > 100 {
			return nil, Validation("discountPercent must be between 1 and 100")
		}
		p.DiscountPercent = *req.DiscountPercent
	}
	if req.ClearExpiry {
		p.ExpiryDate = nil
	} else if req.ExpiryDate != nil {
		p.ExpiryDate = req.ExpiryDate
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	p.UpdatedAt = s.now()

	err = s.promotions.Update(ctx, p)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, Conflict("Promotion code already exists")
	case errors.Is(err, repository.ErrNotFound):
		return nil, NotFound("Promotion not found")
	case err != nil:
		return nil, fmt.Errorf("update promotion: %w", err)
	}
	return p, nil
}

func (s *PromotionService) Delete(ctx context.Context, id string) error {
	err := s.promotions.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("Promotion not found")
	}
	return err
}

// Validate checks a code a shopper typed in. An unknown or inactive code
// and an expired one are reported in the result, not as errors.
func (s *PromotionService) Validate(ctx context.Context, rawCode string) (*models.PromotionValidation, error) {
	code := NormalizeCode(rawCode)
	if code == "" {
		return &models.PromotionValidation{Valid: false, Message: msgInvalidPromotion}, nil
	}
	p, err := s.promotions.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.PromotionValidation{Valid: false, Message: msgInvalidPromotion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup promotion: %w", err)
	}
	if !p.Active {
		return &models.PromotionValidation{Valid: false, Message: msgInvalidPromotion}, nil
	}
	if p.Expired(s.now()) {
		return &models.PromotionValidation{Valid: false, Message: msgExpiredPromotion}, nil
	}
	return &models.PromotionValidation{
		Valid: true,
		Promotion: &models.PromotionSummary{
			ID:              p.ID,
			Code:            p.Code,
			DiscountPercent: p.DiscountPercent,
			ExpiryDate:      p.ExpiryDate,
		},
	}, nil
}
