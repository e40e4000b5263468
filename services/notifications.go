package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"shop-service/metrics"
	"shop-service/models"
	"shop-service/push"
	"shop-service/repository"
)

type PushSender interface {
	Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error)
}

type NotificationUsers interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetPushToken(ctx context.Context, id, token string) error
	ListWithPushToken(ctx context.Context) ([]models.User, error)
}

type OrderFinder interface {
	FindByID(ctx context.Context, id string) (*models.Order, error)
}

type PromotionGetter interface {
	FindByID(ctx context.Context, id string) (*models.Promotion, error)
}

// NotificationService turns events into push notifications. Errors it
// returns are worth retrying; everything else is logged and dropped.
type NotificationService struct {
	sender     PushSender
	users      NotificationUsers
	orders     OrderFinder
	promotions PromotionGetter
}

func NewNotificationService(sender PushSender, users NotificationUsers, orders OrderFinder, promotions PromotionGetter) *NotificationService {
	return &NotificationService{sender: sender, users: users, orders: orders, promotions: promotions}
}

// Handle dispatches one event.
func (s *NotificationService) Handle(ctx context.Context, ev models.Event) error {
	switch ev.Type {
	case models.EventOrderStatusChanged:
		return s.NotifyOrderStatus(ctx, ev.OrderID, ev.Status)
	case models.EventPromotionCreated:
		_, err := s.NotifyPromotion(ctx, ev.PromotionID)
		return err
	}
	slog.WarnContext(ctx, "Ignoring event of unknown type", "type", ev.Type, "event_id", ev.ID)
	return nil
}

type pushTemplate struct {
	title string
	body  string
}

var orderTemplates = map[models.OrderStatus]pushTemplate{
	models.OrderStatusPending:    {"Order Received", "Your order #%s has been received and is pending."},
	models.OrderStatusProcessing: {"Order Processing", "Your order #%s is now being processed."},
	models.OrderStatusShipped:    {"Order Shipped", "Good news! Your order #%s has been shipped."},
	models.OrderStatusDelivered:  {"Order Delivered", "Your order #%s has been delivered. Enjoy!"},
	models.OrderStatusCancelled:  {"Order Cancelled", "Your order #%s has been cancelled."},
}

// OrderStatusMessage builds the title and body shown for a status change.
// The order number is the last eight characters of the order id.
func OrderStatusMessage(orderID, status string) (title, body string) {
	number := orderID
	if len(number) > 8 {
		number = number[len(number)-8:]
	}
	if t, ok := orderTemplates[models.OrderStatus(status)]; ok {
		return t.title, fmt.Sprintf(t.body, number)
	}
	return "Order Updated", fmt.Sprintf("Your order #%s status has been updated to %s.", number, status)
}

// NotifyOrderStatus pushes a status message to the order's owner. A missing
// order, user or token is not an error.
func (s *NotificationService) NotifyOrderStatus(ctx context.Context, orderID, status string) error {
	const kind = "order_status"
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		slog.InfoContext(ctx, "Order not found for notification", "order_id", orderID)
		metrics.RecordNotification(kind, "skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	user, err := s.users.FindByID(ctx, order.UserID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && user.PushToken == "") {
		slog.InfoContext(ctx, "No push token for order owner", "order_id", orderID, "user_id", order.UserID)
		metrics.RecordNotification(kind, "skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	title, body := OrderStatusMessage(order.ID, status)
	tickets, err := s.sender.Send(ctx, []push.Message{{
		To:    user.PushToken,
		Sound: "default",
		Title: title,
		Body:  body,
		Data:  map[string]any{"orderId": order.ID, "screen": "OrderDetails"},
	}})
	if err != nil {
		if !retryable(err) {
			slog.ErrorContext(ctx, "Push rejected, dropping notification", "order_id", orderID, "error", err)
			metrics.RecordNotification(kind, "dropped")
			return nil
		}
		metrics.RecordNotification(kind, "failed")
		return fmt.Errorf("send order notification: %w", err)
	}

	for _, t := range tickets {
		if t.TokenInvalid() {
			s.clearToken(ctx, user.ID)
			metrics.RecordNotification(kind, "token_cleared")
			return nil
		}
	}
	slog.InfoContext(ctx, "Order notification sent", "order_id", orderID, "user_id", user.ID, "status", status)
	metrics.RecordNotification(kind, "sent")
	return nil
}

// NotifyPromotion broadcasts a new promotion to every user with a push
// token and returns how many messages were accepted. Failed batches are
// logged and not retried.
func (s *NotificationService) NotifyPromotion(ctx context.Context, promotionID string) (int, error) {
	const kind = "promotion"
	promo, err := s.promotions.FindByID(ctx, promotionID)
	if errors.Is(err, repository.ErrNotFound) {
		slog.InfoContext(ctx, "Promotion not found for broadcast", "promotion_id", promotionID)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load promotion: %w", err)
	}
	users, err := s.users.ListWithPushToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("list push recipients: %w", err)
	}
	if len(users) == 0 {
		slog.InfoContext(ctx, "No users with push tokens found")
		return 0, nil
	}

	data := map[string]any{
		"promotionId":     promo.ID,
		"promoCode":       promo.Code,
		"discountPercent": promo.DiscountPercent,
		"type":            "new_promotion",
	}
	body := "Use code " + promo.Code + " for " + strconv.Itoa(promo.DiscountPercent) + "% off your next purchase!"

	sent := 0
	for start := 0; start < len(users); start += push.MaxBatch {
		end := min(start+push.MaxBatch, len(users))
		batch := users[start:end]
		messages := make([]push.Message, len(batch))
		for i, u := range batch {
			messages[i] = push.Message{To: u.PushToken, Sound: "default", Title: "New Promotion Available!", Body: body, Data: data}
		}
		tickets, err := s.sender.Send(ctx, messages)
		if err != nil {
			slog.ErrorContext(ctx, "Promotion batch failed", "promotion_id", promo.ID, "size", len(batch), "error", err)
			metrics.RecordNotification(kind, "failed")
			continue
		}
		for i, t := range tickets {
			switch {
			case t.OK():
				sent++
				metrics.RecordNotification(kind, "sent")
			case t.TokenInvalid():
				s.clearToken(ctx, batch[i].ID)
				metrics.RecordNotification(kind, "token_cleared")
			default:
				metrics.RecordNotification(kind, "failed")
			}
		}
	}
	slog.InfoContext(ctx, "Sent promotion notification", "promotion_id", promo.ID, "recipients", sent)
	return sent, nil
}

func (s *NotificationService) clearToken(ctx context.Context, userID string) {
	if err := s.users.SetPushToken(ctx, userID, ""); err != nil {
		slog.ErrorContext(ctx, "Failed to clear invalid push token", "user_id", userID, "error", err)
		return
	}
	slog.InfoContext(ctx, "Cleared invalid push token", "user_id", userID)
}

// retryable treats rejected requests as final and every other failure
// (network, timeouts, 5xx, 429) as transient.
func retryable(err error) bool {
	var se *push.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
