package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCategory = "Face"

// MaxQuantity bounds stock levels and order quantities. It fits the
// INT UNSIGNED stock column and a 32-bit int.
const MaxQuantity = 1<<31 - 1

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Image         string          `json:"image"`
	StockQuantity int             `json:"stockQuantity"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ProductRequest is bound from either a JSON body or a multipart form, so
// every field is optional here and required-ness is checked per operation.
type ProductRequest struct {
	Name          *string      `json:"name" form:"name"`
	Price         *json.Number `json:"price" form:"price"`
	Category      *string      `json:"category" form:"category"`
	Description   *string      `json:"description" form:"description"`
	StockQuantity *int         `json:"stockQuantity" form:"stockQuantity" binding:"omitempty,min=0,max=2147483647"`
}
