package client

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/shopspring/decimal"

	"shop-service/models"
)

// State is what the client knows about the signed-in shopper. Read it with
// Snapshot.
type State struct {
	User            *models.UserResponse
	Products        []models.Product
	SelectedProduct *models.Product
	Cart            []models.CartLine
	Promotion       *models.PromotionSummary
	Orders          []models.Order
	CurrentOrder    *models.Order
	Reviews         map[string][]models.Review
	// LastError is the message of the most recent failed action.
	LastError string
}

func newState() State {
	return State{Reviews: map[string][]models.Review{}}
}

// Snapshot returns a copy of the state that later actions do not modify.
func (c *Client) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.state
	s.Products = slices.Clone(s.Products)
	s.Cart = slices.Clone(s.Cart)
	s.Orders = slices.Clone(s.Orders)
	s.Reviews = make(map[string][]models.Review, len(c.state.Reviews))
	for id, rs := range c.state.Reviews {
		s.Reviews[id] = slices.Clone(rs)
	}
	return s
}

func (c *Client) update(fn func(s *State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	c.state.LastError = ""
}

func (c *Client) fail(err error) error {
	msg := err.Error()
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	c.mu.Lock()
	c.state.LastError = msg
	c.mu.Unlock()
	return err
}

func (c *Client) signIn(resp models.AuthResponse) {
	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	c.update(func(s *State) {
		user := resp.User
		s.User = &user
		if resp.Cart != nil {
			s.Cart = resp.Cart
		}
	})
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) error {
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &resp); err != nil {
		return c.fail(err)
	}
	c.signIn(resp)
	return nil
}

// Login signs in and restores the cart saved on the server.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return c.fail(err)
	}
	c.signIn(resp)
	return nil
}

func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.state = newState()
}

func (c *Client) RegisterPushToken(ctx context.Context, token string) error {
	if err := c.do(ctx, http.MethodPost, "/api/users/push-token", models.PushTokenRequest{Token: token}, nil); err != nil {
		return c.fail(err)
	}
	return nil
}

func (c *Client) FetchProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, &products); err != nil {
		return nil, c.fail(err)
	}
	c.update(func(s *State) { s.Products = products })
	return products, nil
}

func (c *Client) FetchProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+escape(id), nil, &p); err != nil {
		return nil, c.fail(err)
	}
	c.update(func(s *State) {
		s.SelectedProduct = &p
		if i := slices.IndexFunc(s.Products, func(x models.Product) bool { return x.ID == p.ID }); i >= 0 {
			s.Products[i] = p
		}
	})
	return &p, nil
}

func (c *Client) FetchCart(ctx context.Context) ([]models.CartLine, error) {
	return c.cartAction(ctx, http.MethodGet, "/api/carts", nil)
}

// SetCartItem sets the quantity of a product in the cart; the server
// rejects quantities above the current stock.
func (c *Client) SetCartItem(ctx context.Context, productID string, quantity int) ([]models.CartLine, error) {
	return c.cartAction(ctx, http.MethodPost, "/api/carts/items", models.UpdateCartRequest{ProductID: productID, Quantity: quantity})
}

func (c *Client) RemoveCartItem(ctx context.Context, productID string) ([]models.CartLine, error) {
	return c.cartAction(ctx, http.MethodDelete, "/api/carts/items/"+escape(productID), nil)
}

func (c *Client) ClearCart(ctx context.Context) error {
	_, err := c.cartAction(ctx, http.MethodDelete, "/api/carts", nil)
	return err
}

func (c *Client) cartAction(ctx context.Context, method, path string, body any) ([]models.CartLine, error) {
	var resp models.CartResponse
	if err := c.do(ctx, method, path, body, &resp); err != nil {
		return nil, c.fail(err)
	}
	c.update(func(s *State) { s.Cart = resp.Items })
	return resp.Items, nil
}

// ApplyPromotion validates a code and, when valid, keeps it for the next
// checkout. An invalid code clears any applied promotion and is reported
// in the result, not as an error.
func (c *Client) ApplyPromotion(ctx context.Context, code string) (*models.PromotionValidation, error) {
	var res models.PromotionValidation
	if err := c.do(ctx, http.MethodGet, "/api/promotions/validate/"+escape(code), nil, &res); err != nil {
		return nil, c.fail(err)
	}
	c.update(func(s *State) {
		s.Promotion = nil
		if res.Valid {
			s.Promotion = res.Promotion
		}
	})
	return &res, nil
}

func (c *Client) RemovePromotion() {
	c.update(func(s *State) { s.Promotion = nil })
}

// Totals prices the current cart the same way the server does at checkout.
func (c *Client) Totals(shipping decimal.Decimal) models.Totals {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := decimal.Zero
	for _, line := range c.state.Cart {
		items = items.Add(models.LineTotal(line.Product.Price, line.Quantity))
	}
	percent := 0
	if c.state.Promotion != nil {
		percent = c.state.Promotion.DiscountPercent
	}
	return models.ComputeTotals(items, shipping, percent)
}

type CheckoutInput struct {
	ShippingAddress models.ShippingAddress
	PhoneNumber     string
	PaymentMethod   models.PaymentMethod
	ShippingPrice   decimal.Decimal
	// IdempotencyKey identifies the attempt; reuse it when retrying a
	// checkout whose outcome is unknown. A new key is generated if empty.
	IdempotencyKey string
}

var ErrEmptyCart = errors.New("cart is empty")

// Checkout orders the current cart with the applied promotion. On success
// the local cart and promotion are cleared and the order becomes the
// current order.
func (c *Client) Checkout(ctx context.Context, in CheckoutInput) (*models.Order, error) {
	c.mu.RLock()
	lines := slices.Clone(c.state.Cart)
	promo := c.state.Promotion
	c.mu.RUnlock()
	if len(lines) == 0 {
		return nil, c.fail(ErrEmptyCart)
	}

	totals := c.Totals(in.ShippingPrice)
	req := models.CreateOrderRequest{
		OrderItems:      make([]models.OrderItemRequest, len(lines)),
		ShippingAddress: in.ShippingAddress,
		PhoneNumber:     in.PhoneNumber,
		PaymentMethod:   in.PaymentMethod,
		ItemsPrice:      totals.Items,
		ShippingPrice:   totals.Shipping,
		TotalPrice:      totals.Total,
	}
	for i, line := range lines {
		req.OrderItems[i] = models.OrderItemRequest{Product: line.Product.ID, Quantity: line.Quantity}
	}
	if promo != nil {
		req.PromotionCode = promo.Code
	}
	key := in.IdempotencyKey
	if key == "" {
		key = c.newKey()
	}

	var order models.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &order, "Idempotency-Key", key); err != nil {
		return nil, c.fail(err)
	}
	c.update(func(s *State) {
		s.Cart = []models.CartLine{}
		s.Promotion = nil
		s.CurrentOrder = &order
		if !slices.ContainsFunc(s.Orders, func(o models.Order) bool { return o.ID == order.ID }) {
			s.Orders = append([]models.Order{order}, s.Orders...)
		}
	})
	return &order, nil
}

func (c *Client) FetchOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/user", nil, &orders); err != nil {
		return nil, c.fail(err)
	}
	c.update(func(s *State) { s.Orders = orders })
	return orders, nil
}

func (c *Client) FetchOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+escape(id), nil, &order); err != nil {
		return nil, c.fail(err)
	}
	c.update(func(s *State) { s.CurrentOrder = &order })
	return &order, nil
}

func (c *Client) FetchReviews(ctx context.Context, productID string) ([]models.Review, error) {
	var reviews []models.Review
	if err := c.do(ctx, http.MethodGet, "/api/products/"+escape(productID)+"/reviews", nil, &reviews); err != nil {
		return nil, c.fail(err)
	}
	c.update(func(s *State) { s.Reviews[productID] = reviews })
	return reviews, nil
}

// SubmitReview posts the user's review and puts it first in the product's
// review list.
func (c *Client) SubmitReview(ctx context.Context, productID string, rating int, comment string) (*models.Review, error) {
	var rv models.Review
	req := models.ReviewRequest{Rating: rating, Comment: comment}
	if err := c.do(ctx, http.MethodPost, "/api/products/"+escape(productID)+"/reviews", req, &rv); err != nil {
		return nil, c.fail(err)
	}
	c.update(func(s *State) {
		s.Reviews[productID] = append([]models.Review{rv}, s.Reviews[productID]...)
	})
	return &rv, nil
}
