package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shop-service/metrics"
	"shop-service/models"
	"shop-service/repository"
)

type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

type PromotionFinder interface {
	FindByCode(ctx context.Context, code string) (*models.Promotion, error)
}

// CheckoutService places orders: it reserves stock and records the order in
// one transaction on the primary store, then clears the cart store.
type CheckoutService struct {
	tx         repository.Transactor
	carts      CartClearer
	promotions PromotionFinder
	now        func() time.Time
	newID      func() string
}

func NewCheckoutService(tx repository.Transactor, carts CartClearer, promotions PromotionFinder) *CheckoutService {
	return &CheckoutService{
		tx:         tx,
		carts:      carts,
		promotions: promotions,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

type CheckoutResult struct {
	Order *models.Order
	// Replayed is set when the idempotency key matched an earlier order
	// and nothing was written.
	Replayed bool
}

var errIdempotencyRace = errors.New("idempotency key inserted concurrently")

type orderLine struct {
	ProductID string
	Quantity  int
}

// PlaceOrder runs the stock reservation flow. Either every product is
// decremented and the order exists, or nothing changed.
func (s *CheckoutService) PlaceOrder(ctx context.Context, userID string, req models.CreateOrderRequest, idempotencyKey string) (*CheckoutResult, error) {
	lines, err := mergeOrderLines(req.OrderItems)
	if err != nil {
		return nil, err
	}
	if req.ShippingPrice.IsNegative() {
		return nil, Validation("shippingPrice must not be negative")
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if len(idempotencyKey) > 128 {
		return nil, Validation("Idempotency-Key must be at most 128 characters")
	}

	now := s.now()
	promo, err := s.resolvePromotion(ctx, req.PromotionCode, now)
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{}
	err = s.tx.InTx(ctx, func(tx repository.Tx) error {
		if idempotencyKey != "" {
			existing, err := tx.FindOrderByIdempotencyKey(ctx, userID, idempotencyKey)
			if err == nil {
				result.Order, result.Replayed = existing, true
				return nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("lookup idempotency key: %w", err)
			}
		}

		order, err := s.reserve(ctx, tx, userID, lines, req, promo, now)
		if err != nil {
			return err
		}
		order.IdempotencyKey = idempotencyKey

		if err := tx.InsertOrder(ctx, order); err != nil {
			if errors.Is(err, repository.ErrDuplicate) && idempotencyKey != "" {
				return errIdempotencyRace
			}
			return fmt.Errorf("insert order: %w", err)
		}
		result.Order = order
		return nil
	})
	if errors.Is(err, errIdempotencyRace) {
		return s.replay(ctx, userID, idempotencyKey)
	}
	if err != nil {
		if KindOf(err) == KindInsufficientStock {
			metrics.RecordStockRejection()
		}
		return nil, err
	}

	if !result.Replayed {
		// The order is committed; a failed cart clear only leaves stale
		// lines behind and must not fail the checkout.
		if err := s.carts.Clear(ctx, userID); err != nil {
			metrics.RecordCartClearFailure()
			slog.WarnContext(ctx, "Failed to clear cart after checkout",
				"user_id", userID, "order_id", result.Order.ID, "error", err)
		}
	}
	return result, nil
}

// reserve locks every product in id order, checks all of them before
// touching stock, and only then decrements.
func (s *CheckoutService) reserve(ctx context.Context, tx repository.Tx, userID string, lines []orderLine,
	req models.CreateOrderRequest, promo *models.Promotion, now time.Time) (*models.Order, error) {
	items := make([]models.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		product, err := tx.LockProduct(ctx, line.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NotFound("Product not found: %s", line.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("lock product %s: %w", line.ProductID, err)
		}
		if product.StockQuantity < line.Quantity {
			return nil, InsufficientStock("Not enough stock for %s. Available: %d", product.Name, product.StockQuantity)
		}
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.Image,
			Quantity:  line.Quantity,
			Price:     product.Price,
		})
		subtotal = subtotal.Add(models.LineTotal(product.Price, line.Quantity))
	}

	percent, code := 0, ""
	if promo != nil {
		percent, code = promo.DiscountPercent, promo.Code
	}
	totals := models.ComputeTotals(subtotal, req.ShippingPrice, percent)
	if err := checkClientTotals(req, totals); err != nil {
		return nil, err
	}

	for _, line := range lines {
		if err := tx.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			if errors.Is(err, repository.ErrStockConflict) {
				return nil, InsufficientStock("Not enough stock for product %s", line.ProductID)
			}
			return nil, fmt.Errorf("decrement stock for %s: %w", line.ProductID, err)
		}
	}

	return &models.Order{
		ID:              s.newID(),
		UserID:          userID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PhoneNumber:     req.PhoneNumber,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      totals.Items,
		ShippingPrice:   totals.Shipping,
		DiscountPrice:   totals.Discount,
		TotalPrice:      totals.Total,
		PromotionCode:   code,
		Status:          models.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *CheckoutService) resolvePromotion(ctx context.Context, rawCode string, now time.Time) (*models.Promotion, error) {
	code := NormalizeCode(rawCode)
	if code == "" {
		return nil, nil
	}
	promo, err := s.promotions.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, Validation(msgInvalidPromotion)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup promotion: %w", err)
	}
	if !promo.Active {
		return nil, Validation(msgInvalidPromotion)
	}
	if promo.Expired(now) {
		return nil, Validation(msgExpiredPromotion)
	}
	return promo, nil
}

func (s *CheckoutService) replay(ctx context.Context, userID, key string) (*CheckoutResult, error) {
	result := &CheckoutResult{Replayed: true}
	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		order, err := tx.FindOrderByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return fmt.Errorf("reload idempotent order: %w", err)
		}
		result.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// mergeOrderLines sums quantities of repeated products and sorts by product
// id so concurrent checkouts lock rows in the same order.
func mergeOrderLines(items []models.OrderItemRequest) ([]orderLine, error) {
	if len(items) == 0 {
		return nil, Validation("Order must contain at least one item")
	}
	quantities := make(map[string]int, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.Product)
		if id == "" {
			return nil, Validation("Order item is missing a product")
		}
		if item.Quantity < 1 {
			return nil, Validation("Quantity for product %s must be at least 1", id)
		}
		if item.Quantity > models.MaxQuantity-quantities[id] {
			return nil, Validation("Quantity for product %s must not exceed %d", id, models.MaxQuantity)
		}
		quantities[id] += item.Quantity
	}
	lines := make([]orderLine, 0, len(quantities))
	for id, qty := range quantities {
		lines = append(lines, orderLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

// checkClientTotals rejects requests whose totals disagree with the
// server's. Zero values mean the client left the field out.
func checkClientTotals(req models.CreateOrderRequest, totals models.Totals) error {
	if !req.ItemsPrice.IsZero() && req.ItemsPrice.Sub(totals.Items).Abs().GreaterThan(models.PriceTolerance) {
		return Validation("price mismatch: itemsPrice %s does not match %s", req.ItemsPrice.StringFixed(2), totals.Items.StringFixed(2))
	}
	if !req.TotalPrice.IsZero() && req.TotalPrice.Sub(totals.Total).Abs().GreaterThan(models.PriceTolerance) {
		return Validation("price mismatch: totalPrice %s does not match %s", req.TotalPrice.StringFixed(2), totals.Total.StringFixed(2))
	}
	return nil
}
