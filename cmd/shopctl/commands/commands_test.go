package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"shop-service/controllers"
	"shop-service/models"
	"shop-service/repository/memory"
	"shop-service/services"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	now := time.Now().UTC()
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, store.Users().Create(ctx, &models.User{
		ID: "u1", Name: "Ada", Email: "ada@example.com", PasswordHash: string(hash), CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.Products().Create(ctx, &models.Product{
		ID: "p1", Name: "Serum", Price: decimal.RequireFromString("12.00"),
		Category: models.DefaultCategory, StockQuantity: 4, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.Promotions().Create(ctx, &models.Promotion{
		ID: "promo1", Code: "HALF", DiscountPercent: 50, Active: true, CreatedAt: now, UpdatedAt: now,
	}))

	uploads := controllers.Uploads{Dir: t.TempDir()}
	carts := services.NewCartService(store.Carts(), store.Products())
	auth := services.NewAuthService(store.Users(), carts, "cli-secret", time.Hour)
	srv := httptest.NewServer(controllers.NewRouter(controllers.RouterConfig{
		Auth:       auth,
		Users:      controllers.NewUserController(auth, uploads),
		Products:   controllers.NewProductController(services.NewProductService(store.Products()), uploads),
		Carts:      controllers.NewCartController(carts),
		Orders:     controllers.NewOrderController(services.NewCheckoutService(store, store.Carts(), store.Promotions()), services.NewOrderService(store, store.Orders(), false)),
		Promotions: controllers.NewPromotionController(services.NewPromotionService(store, store.Promotions())),
		Reviews:    controllers.NewReviewController(services.NewReviewService(store.Reviews(), store.Products(), store.Orders()), uploads),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckoutFromCommandLine(t *testing.T) {
	srv := newBackend(t)
	t.Cleanup(func() { token, jsonOutput, promoCode, idempotencyKey = "", false, "", "" })

	out, err := run(t, "--server", srv.URL, "login", "--email", "ada@example.com", "--password", "secret1")
	require.NoError(t, err)
	tok := strings.TrimSpace(out)
	require.NotEmpty(t, tok)

	out, err = run(t, "--server", srv.URL, "--token", tok, "cart", "set", "p1", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Serum")

	out, err = run(t, "--server", srv.URL, "--token", tok, "--json", "checkout",
		"--address", "1 Main St", "--city", "Springfield", "--postal-code", "12345", "--country", "US",
		"--phone", "555-0100", "--shipping", "5", "--promo", "half", "--key", "cli-1")
	require.NoError(t, err)
	var order models.Order
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Equal(t, "HALF", order.PromotionCode)
	assert.Equal(t, "17.00", order.TotalPrice.StringFixed(2))

	out, err = run(t, "--server", srv.URL, "--token", tok, "--json=false", "orders")
	require.NoError(t, err)
	assert.Contains(t, out, order.ID)
	assert.Contains(t, out, "pending")
}

func TestInvalidPromotionAbortsCheckout(t *testing.T) {
	srv := newBackend(t)
	t.Cleanup(func() { token, jsonOutput, promoCode, idempotencyKey = "", false, "", "" })

	out, err := run(t, "--server", srv.URL, "login", "--email", "ada@example.com", "--password", "secret1")
	require.NoError(t, err)
	tok := strings.TrimSpace(out)

	_, err = run(t, "--server", srv.URL, "--token", tok, "cart", "set", "p1", "1")
	require.NoError(t, err)

	_, err = run(t, "--server", srv.URL, "--token", tok, "checkout",
		"--address", "1 Main St", "--city", "Springfield", "--postal-code", "12345", "--country", "US",
		"--phone", "555-0100", "--promo", "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid promotion code")

	out, err = run(t, "--server", srv.URL, "--token", tok, "cart")
	require.NoError(t, err)
	assert.Contains(t, out, "Serum")
}
