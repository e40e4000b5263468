package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-service/models"
	"shop-service/repository"
	"shop-service/repository/memory"
)

func newCheckout(store *memory.Store) *CheckoutService {
	s := NewCheckoutService(store, store.Carts(), store.Promotions())
	s.now = fixedNow
	return s
}

func TestPlaceOrderReservesStockAndClearsCart(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 3)
	require.NoError(t, store.Carts().Upsert(ctx, "u1", "p1", 2, testNow))

	result, err := newCheckout(store).PlaceOrder(ctx, "u1", orderRequest(item("p1", 2)), "")
	require.NoError(t, err)
	assert.False(t, result.Replayed)

	order := result.Order
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Nil(t, order.DeliveredAt)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Serum", order.Items[0].Name)
	assert.Equal(t, "/uploads/p1.png", order.Items[0].Image)
	assert.True(t, order.ItemsPrice.Equal(decimal.NewFromInt(20)))
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(25)))

	assert.Equal(t, 1, stockOf(t, store, "p1"))
	cart, err := store.Carts().ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, cart)

	_, err = newCheckout(store).PlaceOrder(ctx, "u1", orderRequest(item("p1", 2)), "")
	require.Error(t, err)
	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.Contains(t, err.Error(), "Not enough stock for Serum. Available: 1")
	assert.Equal(t, 1, stockOf(t, store, "p1"))
}

func TestPlaceOrderInsufficientStockMutatesNothing(t *testing.T) {
	// The short item sits first, in the middle and last in id order.
	for _, short := range []string{"a", "m", "z"} {
		t.Run("short item "+short, func(t *testing.T) {
			store := memory.New()
			for _, id := range []string{"a", "m", "z"} {
				stock := 10
				if id == short {
					stock = 1
				}
				addProduct(t, store, id, "Product "+id, "4.50", stock)
			}

			_, err := newCheckout(store).PlaceOrder(context.Background(), "u1",
				orderRequest(item("a", 2), item("m", 2), item("z", 2)), "")
			require.Error(t, err)
			assert.Equal(t, KindInsufficientStock, KindOf(err))

			for _, id := range []string{"a", "m", "z"} {
				want := 10
				if id == short {
					want = 1
				}
				assert.Equal(t, want, stockOf(t, store, id), "stock of %s", id)
			}
			orders, err := store.Orders().ListByUser(context.Background(), "u1")
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestPlaceOrderUnknownProduct(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 3)

	_, err := newCheckout(store).PlaceOrder(context.Background(), "u1",
		orderRequest(item("p1", 1), item("missing", 1)), "")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, err.Error(), "Product not found: missing")
	assert.Equal(t, 3, stockOf(t, store, "p1"))
}

func TestPlaceOrderMergesDuplicateLines(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 5)

	result, err := newCheckout(store).PlaceOrder(context.Background(), "u1",
		orderRequest(item("p1", 2), item("p1", 1)), "")
	require.NoError(t, err)
	require.Len(t, result.Order.Items, 1)
	assert.Equal(t, 3, result.Order.Items[0].Quantity)
	assert.Equal(t, 2, stockOf(t, store, "p1"))
}

func TestPlaceOrderRejectsOverflowingQuantities(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 3)

	for _, req := range []models.CreateOrderRequest{
		orderRequest(item("p1", math.MaxInt), item("p1", 2)),
		orderRequest(item("p1", models.MaxQuantity), item("p1", 1)),
		orderRequest(item("p1", models.MaxQuantity+1)),
	} {
		_, err := newCheckout(store).PlaceOrder(context.Background(), "u1", req, "")
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	}
	assert.Equal(t, 3, stockOf(t, store, "p1"))
	orders, err := store.Orders().ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceOrderRejectsPriceMismatch(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 5)

	req := orderRequest(item("p1", 2))
	req.ItemsPrice = decimal.RequireFromString("19.50")
	_, err := newCheckout(store).PlaceOrder(context.Background(), "u1", req, "")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "price mismatch")
	assert.Equal(t, 5, stockOf(t, store, "p1"))

	req.ItemsPrice = decimal.RequireFromString("20.005")
	req.TotalPrice = decimal.RequireFromString("25.00")
	_, err = newCheckout(store).PlaceOrder(context.Background(), "u1", req, "")
	require.NoError(t, err)
}

func TestPlaceOrderAppliesPromotion(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 5)
	addPromotion(t, store, "promo1", "SAVE10", 10, true, nil)

	req := orderRequest(item("p1", 2))
	req.PromotionCode = " save10 "
	req.TotalPrice = decimal.RequireFromString("23.00")

	result, err := newCheckout(store).PlaceOrder(context.Background(), "u1", req, "")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", result.Order.PromotionCode)
	assert.True(t, result.Order.DiscountPrice.Equal(decimal.NewFromInt(2)))
	assert.True(t, result.Order.TotalPrice.Equal(decimal.NewFromInt(23)))
}

func TestPlaceOrderRejectsUnusablePromotion(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 5)
	addPromotion(t, store, "promo1", "SAVE10", 10, true, timePtr(testNow.AddDate(0, 0, -1)))
	addPromotion(t, store, "promo2", "OFF", 10, false, nil)

	tests := map[string]string{
		"SAVE10":  "This promotion has expired",
		"OFF":     "Invalid promotion code",
		"UNKNOWN": "Invalid promotion code",
	}
	for code, msg := range tests {
		req := orderRequest(item("p1", 1))
		req.PromotionCode = code
		_, err := newCheckout(store).PlaceOrder(context.Background(), "u1", req, "")
		require.Error(t, err, code)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Contains(t, err.Error(), msg)
	}
	assert.Equal(t, 5, stockOf(t, store, "p1"))
}

func TestPlaceOrderIdempotentRetry(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 5)
	checkout := newCheckout(store)

	first, err := checkout.PlaceOrder(ctx, "u1", orderRequest(item("p1", 2)), "key-1")
	require.NoError(t, err)
	second, err := checkout.PlaceOrder(ctx, "u1", orderRequest(item("p1", 2)), "key-1")
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 3, stockOf(t, store, "p1"))

	// The key is scoped to the user.
	other, err := checkout.PlaceOrder(ctx, "u2", orderRequest(item("p1", 1)), "key-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Order.ID, other.Order.ID)
	assert.Equal(t, 2, stockOf(t, store, "p1"))
}

func TestPlaceOrderIdempotencyRace(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 5)

	winner := &models.Order{ID: "winner", UserID: "u1", IdempotencyKey: "key-1", Status: models.OrderStatusPending}
	store.BeforeInsertOrder = func(*models.Order) error { return repository.ErrDuplicate }
	store.OnRollback = func() {
		store.OnRollback = nil
		require.NoError(t, store.Orders().Insert(ctx, winner))
	}

	result, err := newCheckout(store).PlaceOrder(ctx, "u1", orderRequest(item("p1", 2)), "key-1")
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, "winner", result.Order.ID)
	assert.Equal(t, 5, stockOf(t, store, "p1"))
}

func TestPlaceOrderSucceedsWhenCartClearFails(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 5)
	store.CartClearErr = errors.New("sqlite locked")

	result, err := newCheckout(store).PlaceOrder(context.Background(), "u1", orderRequest(item("p1", 1)), "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Order.ID)
	assert.Equal(t, 4, stockOf(t, store, "p1"))
}

func TestPlaceOrderConcurrentCheckoutsNeverOversell(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 5)
	checkout := newCheckout(store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := checkout.PlaceOrder(context.Background(), "u1", orderRequest(item("p1", 1)), "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if KindOf(err) == KindInsufficientStock {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 7, rejected)
	assert.Equal(t, 0, stockOf(t, store, "p1"))
}

func TestPlaceOrderValidatesInput(t *testing.T) {
	store := memory.New()
	addProduct(t, store, "p1", "Serum", "10.00", 5)
	checkout := newCheckout(store)

	_, err := checkout.PlaceOrder(context.Background(), "u1", orderRequest(), "")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = checkout.PlaceOrder(context.Background(), "u1", orderRequest(item("p1", 0)), "")
	assert.Equal(t, KindValidation, KindOf(err))

	req := orderRequest(item("p1", 1))
	req.ShippingPrice = decimal.NewFromInt(-1)
	_, err = checkout.PlaceOrder(context.Background(), "u1", req, "")
	assert.Equal(t, KindValidation, KindOf(err))
}
