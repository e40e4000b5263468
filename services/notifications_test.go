package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-service/models"
	"shop-service/push"
	"shop-service/repository/memory"
)

// fakeSender records batches and answers each message with an ok ticket,
// unless the token is listed in invalid.
type fakeSender struct {
	mu      sync.Mutex
	batches [][]push.Message
	invalid map[string]bool
	err     error
}

func (f *fakeSender) Send(_ context.Context, messages []push.Message) ([]push.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, messages)
	if f.err != nil {
		return nil, f.err
	}
	tickets := make([]push.Ticket, len(messages))
	for i, m := range messages {
		if f.invalid[m.To] {
			tickets[i] = push.Ticket{Status: "error", Details: &push.TicketDetails{Error: push.ErrDeviceNotRegistered}}
			continue
		}
		tickets[i] = push.Ticket{Status: "ok", ID: fmt.Sprintf("ticket-%d", i)}
	}
	return tickets, nil
}

func newNotificationService(store *memory.Store, sender PushSender) *NotificationService {
	return NewNotificationService(sender, store.Users(), store.Orders(), store.Promotions())
}

func pushTokenOf(t *testing.T, store *memory.Store, userID string) string {
	t.Helper()
	u, err := store.Users().FindByID(context.Background(), userID)
	require.NoError(t, err)
	return u.PushToken
}

func TestOrderStatusMessage(t *testing.T) {
	title, body := OrderStatusMessage("0123456789abcdef", "shipped")
	assert.Equal(t, "Order Shipped", title)
	assert.Equal(t, "Good news! Your order #89abcdef has been shipped.", body)

	_, body = OrderStatusMessage("short", "delivered")
	assert.Equal(t, "Your order #short has been delivered. Enjoy!", body)

	title, body = OrderStatusMessage("0123456789abcdef", "refunded")
	assert.Equal(t, "Order Updated", title)
	assert.Contains(t, body, "updated to refunded")
}

func TestNotifyOrderStatusSends(t *testing.T) {
	store := memory.New()
	addUser(t, store, "u1", "ExponentPushToken[abc]")
	seedOrder(t, store, "order-0000000042", "u1", models.OrderStatusShipped)
	sender := &fakeSender{}

	err := newNotificationService(store, sender).Handle(context.Background(), models.Event{
		Type: models.EventOrderStatusChanged, OrderID: "order-0000000042", Status: "shipped",
	})
	require.NoError(t, err)

	require.Len(t, sender.batches, 1)
	msg := sender.batches[0][0]
	assert.Equal(t, "ExponentPushToken[abc]", msg.To)
	assert.Equal(t, "Order Shipped", msg.Title)
	assert.Contains(t, msg.Body, "#00000042")
	assert.Equal(t, "order-0000000042", msg.Data["orderId"])
	assert.Equal(t, "OrderDetails", msg.Data["screen"])
}

func TestNotifyOrderStatusSkips(t *testing.T) {
	store := memory.New()
	addUser(t, store, "u1", "")
	seedOrder(t, store, "order-1", "u1", models.OrderStatusShipped)
	sender := &fakeSender{}
	svc := newNotificationService(store, sender)

	assert.NoError(t, svc.NotifyOrderStatus(context.Background(), "order-1", "shipped"))
	assert.NoError(t, svc.NotifyOrderStatus(context.Background(), "missing", "shipped"))
	assert.Empty(t, sender.batches)
}

func TestNotifyOrderStatusClearsInvalidToken(t *testing.T) {
	store := memory.New()
	addUser(t, store, "u1", "stale")
	seedOrder(t, store, "order-1", "u1", models.OrderStatusShipped)
	sender := &fakeSender{invalid: map[string]bool{"stale": true}}

	require.NoError(t, newNotificationService(store, sender).NotifyOrderStatus(context.Background(), "order-1", "shipped"))
	assert.Empty(t, pushTokenOf(t, store, "u1"))
}

func TestNotifyOrderStatusErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantRetry bool
	}{
		{"server error", &push.StatusError{StatusCode: http.StatusBadGateway}, true},
		{"rate limited", &push.StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"network", errors.New("connection reset"), true},
		{"rejected", &push.StatusError{StatusCode: http.StatusBadRequest}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			addUser(t, store, "u1", "tok")
			seedOrder(t, store, "order-1", "u1", models.OrderStatusShipped)

			err := newNotificationService(store, &fakeSender{err: tt.err}).NotifyOrderStatus(context.Background(), "order-1", "shipped")
			if tt.wantRetry {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, "tok", pushTokenOf(t, store, "u1"))
		})
	}
}

func TestNotifyPromotionBatches(t *testing.T) {
	store := memory.New()
	addPromotion(t, store, "promo1", "SPRING", 15, true, nil)
	for i := 0; i < 250; i++ {
		addUser(t, store, fmt.Sprintf("u%03d", i), fmt.Sprintf("tok-%03d", i))
	}
	addUser(t, store, "no-token", "")
	sender := &fakeSender{invalid: map[string]bool{"tok-007": true}}

	sent, err := newNotificationService(store, sender).NotifyPromotion(context.Background(), "promo1")
	require.NoError(t, err)
	assert.Equal(t, 249, sent)

	require.Len(t, sender.batches, 3)
	assert.Len(t, sender.batches[0], 100)
	assert.Len(t, sender.batches[1], 100)
	assert.Len(t, sender.batches[2], 50)

	msg := sender.batches[0][0]
	assert.Equal(t, "New Promotion Available!", msg.Title)
	assert.Equal(t, "Use code SPRING for 15% off your next purchase!", msg.Body)
	assert.Equal(t, "new_promotion", msg.Data["type"])

	assert.Empty(t, pushTokenOf(t, store, "u007"))
	assert.Equal(t, "tok-008", pushTokenOf(t, store, "u008"))
}

func TestNotifyPromotionBatchFailureIsNotRetried(t *testing.T) {
	store := memory.New()
	addPromotion(t, store, "promo1", "SPRING", 15, true, nil)
	addUser(t, store, "u1", "tok")
	sender := &fakeSender{err: &push.StatusError{StatusCode: http.StatusServiceUnavailable}}

	sent, err := newNotificationService(store, sender).NotifyPromotion(context.Background(), "promo1")
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, sender.batches, 1)
}

func TestNotifyPromotionWithoutRecipients(t *testing.T) {
	store := memory.New()
	addPromotion(t, store, "promo1", "SPRING", 15, true, nil)
	sender := &fakeSender{}
	svc := newNotificationService(store, sender)

	sent, err := svc.NotifyPromotion(context.Background(), "promo1")
	require.NoError(t, err)
	assert.Zero(t, sent)

	sent, err = svc.NotifyPromotion(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, sender.batches)
}
