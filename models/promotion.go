package models

import "time"

type Promotion struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	DiscountPercent int        `json:"discountPercent"`
	ExpiryDate      *time.Time `json:"expiryDate"`
	Active          bool       `json:"active"`
	Description     string     `json:"description"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Expired reports whether the promotion has an expiry at or before now.
func (p *Promotion) Expired(now time.Time) bool {
	return p.ExpiryDate != nil && !p.ExpiryDate.After(now)
}

// ValidAt is the read-time validity rule: active and not expired.
func (p *Promotion) ValidAt(now time.Time) bool {
	return p.Active && !p.Expired(now)
}

type CreatePromotionRequest struct {
	Code            string     `json:"code" binding:"required"`
	DiscountPercent int        `json:"discountPercent" binding:"required,min=1,max=100"`
	ExpiryDate      *time.Time `json:"expiryDate"`
	Active          *bool      `json:"active"`
	Description     string     `json:"description"`
}

type UpdatePromotionRequest struct {
	Code            *string    `json:"code"`
	DiscountPercent *int       `json:"discountPercent" binding:"omitempty,min=1,max=100"`
	ExpiryDate      *time.Time `json:"expiryDate"`
	ClearExpiry     bool       `json:"clearExpiry"`
	Active          *bool      `json:"active"`
	Description     *string    `json:"description"`
}

type PromotionSummary struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	DiscountPercent int        `json:"discountPercent"`
	ExpiryDate      *time.Time `json:"expiryDate"`
}

type PromotionValidation struct {
	Valid     bool              `json:"valid"`
	Message   string            `json:"message,omitempty"`
	Promotion *PromotionSummary `json:"promotion,omitempty"`
}
