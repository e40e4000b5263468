package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-service/models"
	"shop-service/repository/memory"
)

func newCartService(store *memory.Store) *CartService {
	s := NewCartService(store.Carts(), store.Products())
	s.now = fixedNow
	return s
}

func TestJoinCartItemsDropsMissingProducts(t *testing.T) {
	items := []models.CartItem{
		{ID: 1, ProductID: "p1", Quantity: 2},
		{ID: 2, ProductID: "gone", Quantity: 1},
		{ID: 3, ProductID: "p2", Quantity: 4},
	}
	products := []models.Product{
		{ID: "p2", Name: "Toner", Price: decimal.NewFromInt(8)},
		{ID: "p1", Name: "Serum", Price: decimal.NewFromInt(10)},
	}

	lines := JoinCartItems(items, products)
	require.Len(t, lines, 2)
	assert.Equal(t, "p1", lines[0].Product.ID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "p2", lines[1].Product.ID)
	assert.Equal(t, 4, lines[1].Quantity)
}

func TestSetItemOverwritesQuantity(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 5)
	svc := newCartService(store)

	_, err := svc.SetItem(context.Background(), "u1", "p1", 2)
	require.NoError(t, err)
	lines, err := svc.SetItem(context.Background(), "u1", "p1", 3)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, "Serum", lines[0].Product.Name)
}

func TestSetItemRejects(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 2)
	svc := newCartService(store)

	_, err := svc.SetItem(context.Background(), "u1", "p1", 3)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "Insufficient stock. Only 2 available.")

	_, err = svc.SetItem(context.Background(), "u1", "p1", 0)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = svc.SetItem(context.Background(), "u1", "nope", 1)
	assert.Equal(t, KindNotFound, KindOf(err))

	lines, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestCartIsolatedPerUser(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 5)
	addProduct(t, store, "p2", "Toner", "8.00", 5)
	svc := newCartService(store)

	_, err := svc.SetItem(context.Background(), "u1", "p1", 1)
	require.NoError(t, err)
	_, err = svc.SetItem(context.Background(), "u1", "p2", 1)
	require.NoError(t, err)
	_, err = svc.SetItem(context.Background(), "u2", "p1", 2)
	require.NoError(t, err)

	lines, err := svc.RemoveItem(context.Background(), "u1", "p1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "p2", lines[0].Product.ID)

	require.NoError(t, svc.Clear(context.Background(), "u1"))
	lines, err = svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	lines, err = svc.Get(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}
