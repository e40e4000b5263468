package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"

	"shop-service/models"
	"shop-service/repository/memory"
	"shop-service/services"
	"shop-service/utils"
)

const testSecret = "controller-secret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	decimal.MarshalJSONWithoutQuotes = true
	os.Exit(m.Run())
}

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	auth   *services.AuthService
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	now := time.Now().UTC()

	tokens := map[string]string{}
	for _, u := range []models.User{
		{ID: "u1", Name: "Shopper", Email: "u1@example.com"},
		{ID: "u2", Name: "Other", Email: "u2@example.com"},
		{ID: "admin", Name: "Admin", Email: "admin@example.com", IsAdmin: true},
	} {
		u.CreatedAt, u.UpdatedAt = now, now
		require.NoError(t, store.Users().Create(context.Background(), &u))
		token, err := utils.GenerateToken([]byte(testSecret), u.ID, time.Hour, now)
		require.NoError(t, err)
		tokens[u.ID] = token
	}
	require.NoError(t, store.Products().Create(context.Background(), &models.Product{
		ID: "p1", Name: "Serum", Price: decimal.RequireFromString("10.00"),
		Category: models.DefaultCategory, StockQuantity: 3, CreatedAt: now, UpdatedAt: now,
	}))

	uploads := Uploads{Dir: t.TempDir()}
	carts := services.NewCartService(store.Carts(), store.Products())
	auth := services.NewAuthService(store.Users(), carts, testSecret, time.Hour)

	router := NewRouter(RouterConfig{
		Auth:           auth,
		RequestTimeout: 5 * time.Second,
		UploadsDir:     uploads.Dir,
		HealthChecks: []HealthCheck{
			{Name: "mysql", Check: func(context.Context) error { return nil }},
		},
		Users:      NewUserController(auth, uploads),
		Products:   NewProductController(services.NewProductService(store.Products()), uploads),
		Carts:      NewCartController(carts),
		Orders:     NewOrderController(services.NewCheckoutService(store, store.Carts(), store.Promotions()), services.NewOrderService(store, store.Orders(), false)),
		Promotions: NewPromotionController(services.NewPromotionService(store, store.Promotions())),
		Reviews:    NewReviewController(services.NewReviewService(store.Reviews(), store.Products(), store.Orders()), uploads),
	})
	return &testServer{router: router, store: store, auth: auth, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[user])
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func orderBody(qty int) map[string]any {
	return map[string]any{
		"orderItems": []map[string]any{{"product": "p1", "quantity": qty}},
		"shippingAddress": map[string]any{
			"address": "1 Main St", "city": "Springfield", "postalCode": "12345", "country": "US",
		},
		"phoneNumber":   "555-0100",
		"paymentMethod": "cod",
		"shippingPrice": 5,
	}
}

func TestCheckoutFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/carts/items", "u1", map[string]any{"productId": "p1", "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/orders", "u1", orderBody(2), IdempotencyKeyHeader, "key-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode(t, w)
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, 25.0, order["totalPrice"])

	w = s.do(t, http.MethodPost, "/api/orders", "u1", orderBody(2), IdempotencyKeyHeader, "key-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order["id"], decode(t, w)["id"])

	w = s.do(t, http.MethodGet, "/api/carts", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["items"])

	w = s.do(t, http.MethodPost, "/api/orders", "u1", orderBody(2))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Not enough stock for Serum. Available: 1", decode(t, w)["message"])

	p, err := s.store.Products().FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.StockQuantity)
}

func TestCreateOrderValidation(t *testing.T) {
	s := newTestServer(t)

	body := orderBody(1)
	delete(body, "paymentMethod")
	w := s.do(t, http.MethodPost, "/api/orders", "u1", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = orderBody(1)
	body["orderItems"] = []map[string]any{{"product": "nope", "quantity": 1}}
	w = s.do(t, http.MethodPost, "/api/orders", "u1", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Product not found: nope", decode(t, w)["message"])

	body = orderBody(1)
	body["orderItems"] = []map[string]any{
		{"product": "p1", "quantity": math.MaxInt64},
		{"product": "p1", "quantity": 2},
	}
	w = s.do(t, http.MethodPost, "/api/orders", "u1", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/products/p1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["stockQuantity"])
}

func TestPromotedAdminReachesAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/orders", "u1", nil).Code)

	_, created, err := s.auth.EnsureAdmin(context.Background(), "", "u1@example.com", "")
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/orders", "u1", nil).Code)
	w := s.do(t, http.MethodPost, "/api/promotions", "u1", map[string]any{"code": "WELCOME", "discountPercent": 5})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestOrderAccessControl(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/orders", "u1", orderBody(1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/orders/"+id, "u1", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/orders/"+id, "u2", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/orders/"+id, "admin", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/orders/missing", "u1", nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/orders", "u1", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/orders", "admin", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/orders/user", "", nil).Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/orders", "u1", orderBody(1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)
	path := "/api/orders/" + id + "/status"

	w = s.do(t, http.MethodPut, path, "u1", map[string]any{"status": "shipped"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, path, "admin", map[string]any{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid status value", decode(t, w)["message"])

	w = s.do(t, http.MethodPut, path, "admin", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid status value", decode(t, w)["message"])

	w = s.do(t, http.MethodPut, path, "admin", map[string]any{"status": "delivered"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decode(t, w)["deliveredAt"])

	w = s.do(t, http.MethodGet, "/api/orders/verify-purchase/p1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["verified"])

	events := s.store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "delivered", events[0].Status)
}

func TestPromotionEndpoints(t *testing.T) {
	s := newTestServer(t)
	expired := time.Now().Add(-24 * time.Hour)

	w := s.do(t, http.MethodPost, "/api/promotions", "u1", map[string]any{"code": "SAVE10", "discountPercent": 10})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/promotions", "admin", map[string]any{"code": "SAVE10", "discountPercent": 10, "expiryDate": expired})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/promotions", "admin", map[string]any{"code": "save10", "discountPercent": 10})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/promotions/validate/SAVE10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, false, res["valid"])
	assert.Equal(t, "This promotion has expired", res["message"])

	body := orderBody(1)
	body["promotionCode"] = "SAVE10"
	w = s.do(t, http.MethodPost, "/api/orders", "u1", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "This promotion has expired", decode(t, w)["message"])

	w = s.do(t, http.MethodGet, "/api/promotions?active=true", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestReviewEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/products/p1/reviews", "u1", map[string]any{"rating": 5, "comment": "Lovely"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reviewID := decode(t, w)["id"].(string)

	w = s.do(t, http.MethodPost, "/api/products/p1/reviews", "u1", map[string]any{"rating": 4, "comment": "Again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, "/api/products/p1/reviews/"+reviewID, "u2", map[string]any{"rating": 1, "comment": "Mine"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/products/p1/reviews", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reviews []models.Review
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reviews))
	require.Len(t, reviews, 1)
	assert.Equal(t, "Shopper", reviews[0].User.Name)
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{"name": "New", "email": "new@example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["token"])

	w = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "new@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid password", decode(t, w)["message"])

	w = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "new@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPut, "/api/users/profile", "u1", map[string]any{"name": "Renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, "Profile updated successfully", res["message"])
	assert.Equal(t, "Renamed", res["user"].(map[string]any)["name"])

	w = s.do(t, http.MethodPost, "/api/users/push-token", "u1", map[string]any{"token": "ExponentPushToken[1]"})
	require.Equal(t, http.StatusOK, w.Code)
	u, err := s.store.Users().FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ExponentPushToken[1]", u.PushToken)
}

func TestProductUploadAndExport(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "Toner"))
	require.NoError(t, mw.WriteField("price", "8.5"))
	require.NoError(t, mw.WriteField("stockQuantity", "7"))
	fw, err := mw.CreateFormFile("image", "toner.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/products", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("x-access-token", s.tokens["admin"])
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, 8.5, created["price"])
	image := created["image"].(string)
	assert.True(t, strings.HasPrefix(image, "/uploads/") && strings.HasSuffix(image, ".png"), image)

	w = s.do(t, http.MethodGet, image, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/products/export", "u1", nil).Code)
	w = s.do(t, http.MethodGet, "/api/products/export", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "products.xlsx")

	file, err := xlsx.OpenReaderAt(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)
	assert.Equal(t, 3, file.Sheets[0].MaxRow)
}

func TestProductWorkbook(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	file, err := productWorkbook([]models.Product{{
		ID: "p1", Name: "Serum", Category: "Face", Price: decimal.RequireFromString("10.5"),
		StockQuantity: 3, CreatedAt: now, UpdatedAt: now,
	}})
	require.NoError(t, err)

	rows := file.Sheets[0].Rows
	require.Len(t, rows, 2)
	assert.Equal(t, "ID", rows[0].Cells[0].String())
	assert.Equal(t, "Serum", rows[1].Cells[1].String())
	assert.Equal(t, "10.50", rows[1].Cells[3].String())
	assert.Equal(t, "2024-06-01 12:00:00", rows[1].Cells[7].String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	r := NewRouter(RouterConfig{
		HealthChecks: []HealthCheck{{Name: "rabbitmq", Check: func(context.Context) error { return errors.New("closed") }}},
		Users:        &UserController{},
		Products:     &ProductController{},
		Carts:        &CartController{},
		Orders:       &OrderController{},
		Promotions:   &PromotionController{},
		Reviews:      &ReviewController{},
	})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(services.KindNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(services.KindInsufficientStock))
	assert.Equal(t, http.StatusBadRequest, statusFor(services.KindInvalidStatus))
	assert.Equal(t, http.StatusConflict, statusFor(services.KindConflict))
	assert.Equal(t, http.StatusInternalServerError, statusFor(services.KindInternal))
}
