package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is a row of the cart store. It carries no product data; reads
// join it against the catalog by ProductID.
type CartItem struct {
	ID        int64
	UserID    string
	ProductID string
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CartProduct struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Image         string          `json:"image"`
	StockQuantity int             `json:"stockQuantity"`
	Category      string          `json:"category"`
}

type CartLine struct {
	Product  CartProduct `json:"product"`
	Quantity int         `json:"quantity"`
}

type CartResponse struct {
	Items []CartLine `json:"items"`
}

type UpdateCartRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=2147483647"`
}
