package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ParseOrderStatus accepts only the exact lowercase literals.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(s), true
	}
	return "", false
}

type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "creditCard"
	PaymentPaypal     PaymentMethod = "paypal"
	PaymentCOD        PaymentMethod = "cod"
)

type ShippingAddress struct {
	Address    string `json:"address" binding:"required"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	User            *UserSummary    `json:"user,omitempty"`
	Items           []OrderItem     `json:"orderItems"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PhoneNumber     string          `json:"phoneNumber"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	ItemsPrice      decimal.Decimal `json:"itemsPrice"`
	ShippingPrice   decimal.Decimal `json:"shippingPrice"`
	DiscountPrice   decimal.Decimal `json:"discountPrice"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	PromotionCode   string          `json:"promotionCode,omitempty"`
	IdempotencyKey  string          `json:"-"`
	Status          OrderStatus     `json:"status"`
	DeliveredAt     *time.Time      `json:"deliveredAt"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderItem is a snapshot of the product taken when the order was placed.
type OrderItem struct {
	ProductID string          `json:"product"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderItemRequest struct {
	Product  string `json:"product" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=2147483647"`
}

type CreateOrderRequest struct {
	OrderItems      []OrderItemRequest `json:"orderItems" binding:"required,min=1,dive"`
	ShippingAddress ShippingAddress    `json:"shippingAddress" binding:"required"`
	PhoneNumber     string             `json:"phoneNumber" binding:"required"`
	PaymentMethod   PaymentMethod      `json:"paymentMethod" binding:"required,oneof=creditCard paypal cod"`
	ItemsPrice      decimal.Decimal    `json:"itemsPrice"`
	ShippingPrice   decimal.Decimal    `json:"shippingPrice"`
	TotalPrice      decimal.Decimal    `json:"totalPrice"`
	PromotionCode   string             `json:"promotionCode"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
