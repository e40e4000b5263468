package models

import "time"

type Review struct {
	ID        string         `json:"id"`
	ProductID string         `json:"productId"`
	UserID    string         `json:"userId"`
	Rating    int            `json:"rating"`
	Comment   string         `json:"comment"`
	Image     string         `json:"image,omitempty"`
	Verified  bool           `json:"verified"`
	User      *UserSummary   `json:"user,omitempty"`
	Product   *ReviewProduct `json:"product,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type ReviewProduct struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

type ReviewRequest struct {
	Rating  int    `json:"rating" form:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" form:"comment" binding:"required"`
}
