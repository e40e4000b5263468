package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"shop-service/models"
	"shop-service/repository/memory"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func addProduct(t *testing.T, store *memory.Store, id, name, price string, stock int) {
	t.Helper()
	require.NoError(t, store.Products().Create(context.Background(), &models.Product{
		ID:            id,
		Name:          name,
		Price:         decimal.RequireFromString(price),
		Category:      models.DefaultCategory,
		Image:         "/uploads/" + id + ".png",
		StockQuantity: stock,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}))
}

func addUser(t *testing.T, store *memory.Store, id, pushToken string) {
	t.Helper()
	require.NoError(t, store.Users().Create(context.Background(), &models.User{
		ID:        id,
		Name:      "User " + id,
		Email:     id + "@example.com",
		PushToken: pushToken,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}))
}

func addPromotion(t *testing.T, store *memory.Store, id, code string, percent int, active bool, expiry *time.Time) {
	t.Helper()
	require.NoError(t, store.Promotions().Create(context.Background(), &models.Promotion{
		ID:              id,
		Code:            code,
		DiscountPercent: percent,
		ExpiryDate:      expiry,
		Active:          active,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}))
}

func stockOf(t *testing.T, store *memory.Store, id string) int {
	t.Helper()
	p, err := store.Products().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func orderRequest(items ...models.OrderItemRequest) models.CreateOrderRequest {
	return models.CreateOrderRequest{
		OrderItems: items,
		ShippingAddress: models.ShippingAddress{
			Address:    "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		PhoneNumber:   "555-0100",
		PaymentMethod: models.PaymentCOD,
		ShippingPrice: decimal.NewFromInt(5),
	}
}

func item(product string, qty int) models.OrderItemRequest {
	return models.OrderItemRequest{Product: product, Quantity: qty}
}

func timePtr(t time.Time) *time.Time { return &t }
