package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-service/models"
	"shop-service/repository"
)

type OrderReader interface {
	FindByID(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}

type OrderService struct {
	tx     repository.Transactor
	orders OrderReader
	strict bool
	now    func() time.Time
}

// NewOrderService builds the service. With strict set, orders that are
// delivered or cancelled cannot move to another status.
func NewOrderService(tx repository.Transactor, orders OrderReader, strict bool) *OrderService {
	return &OrderService{
		tx:     tx,
		orders: orders,
		strict: strict,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to models.OrderStatus, strict bool) bool {
	if !strict || from == to {
		return true
	}
	return from != models.OrderStatusDelivered && from != models.OrderStatusCancelled
}

// UpdateStatus sets the order status and records an order.status_changed
// event in the same transaction. Notification happens later, off the
// request path.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, rawStatus string) (*models.Order, error) {
	status, ok := models.ParseOrderStatus(rawStatus)
	if !ok {
		return nil, InvalidStatus("Invalid status value")
	}

	var updated *models.Order
	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return NotFound("Order not found")
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if !CanTransition(order.Status, status, s.strict) {
			return Validation("invalid status transition from %s to %s", order.Status, status)
		}

		now := s.now()
		order.Status = status
		order.UpdatedAt = now
		if status == models.OrderStatusDelivered {
			order.DeliveredAt = &now
		}
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if err := tx.AddOutboxEvent(ctx, models.Event{
			Type:     models.EventOrderStatusChanged,
			OrderID:  order.ID,
			Status:   string(status),
			Occurred: now,
		}); err != nil {
			return fmt.Errorf("record status event: %w", err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Get returns an order to its owner or to an admin.
func (s *OrderService) Get(ctx context.Context, orderID, userID string, isAdmin bool) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("Order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order.UserID != userID && !isAdmin {
		return nil, Forbidden("Not authorized to view this order")
	}
	return order, nil
}

func (s *OrderService) ListForUser(ctx context.Context, userID string) ([]models.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) ListAll(ctx context.Context) ([]models.Order, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// VerifyPurchase reports whether the user has a shipped or delivered order
// containing the product.
func (s *OrderService) VerifyPurchase(ctx context.Context, userID, productID string) (bool, error) {
	ok, err := s.orders.HasPurchased(ctx, userID, productID)
	if err != nil {
		return false, fmt.Errorf("verify purchase: %w", err)
	}
	return ok, nil
}
