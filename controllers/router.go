package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shop-service/middlewares"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouterConfig struct {
	Auth           middlewares.Authenticator
	CORSOrigins    []string
	RequestTimeout time.Duration
	UploadsDir     string
	HealthChecks   []HealthCheck

	Users      *UserController
	Products   *ProductController
	Carts      *CartController
	Orders     *OrderController
	Promotions *PromotionController
	Reviews    *ReviewController
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.PrometheusMiddleware())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", healthHandler(cfg.HealthChecks))
	if cfg.UploadsDir != "" {
		r.Static("/uploads", cfg.UploadsDir)
	}

	api := r.Group("/api")
	api.Use(middlewares.RequestTimeout(cfg.RequestTimeout))

	authRequired := middlewares.AuthMiddleware(cfg.Auth)
	adminRequired := []gin.HandlerFunc{authRequired, middlewares.AdminMiddleware()}

	auth := api.Group("/auth")
	{
		auth.POST("/register", cfg.Users.Register)
		auth.POST("/login", cfg.Users.Login)
		auth.POST("/google", cfg.Users.GoogleAuth)
		auth.POST("/facebook", cfg.Users.FacebookAuth)
		auth.PUT("/profile", authRequired, cfg.Users.UpdateProfile)
	}

	users := api.Group("/users", authRequired)
	{
		users.GET("/profile", cfg.Users.GetProfile)
		users.PUT("/profile", cfg.Users.UpdateProfile)
		users.POST("/push-token", cfg.Users.RegisterPushToken)
		users.POST("/clear-push-token", cfg.Users.ClearPushToken)
	}

	products := api.Group("/products")
	{
		products.GET("", cfg.Products.GetAllProducts)
		products.GET("/export", append(adminRequired, cfg.Products.ExportProducts)...)
		products.GET("/:id", cfg.Products.GetProduct)
		products.POST("", append(adminRequired, cfg.Products.CreateProduct)...)
		products.PUT("/:id", append(adminRequired, cfg.Products.UpdateProduct)...)
		products.DELETE("/:id", append(adminRequired, cfg.Products.DeleteProduct)...)

		products.GET("/:id/reviews", cfg.Reviews.GetProductReviews)
		products.POST("/:id/reviews", authRequired, cfg.Reviews.CreateReview)
		products.PUT("/:id/reviews/:reviewId", authRequired, cfg.Reviews.UpdateReview)
	}

	api.GET("/reviews/user", authRequired, cfg.Reviews.GetUserReviews)

	carts := api.Group("/carts", authRequired)
	{
		carts.GET("", cfg.Carts.GetCart)
		carts.POST("/items", cfg.Carts.UpdateCartItem)
		carts.DELETE("/items/:productId", cfg.Carts.RemoveCartItem)
		carts.DELETE("", cfg.Carts.ClearCart)
	}

	orders := api.Group("/orders", authRequired)
	{
		orders.POST("", cfg.Orders.CreateOrder)
		orders.GET("/user", cfg.Orders.GetUserOrders)
		orders.GET("/verify-purchase/:productId", cfg.Orders.VerifyPurchase)
		orders.GET("/:id", cfg.Orders.GetOrderDetails)
		orders.GET("", middlewares.AdminMiddleware(), cfg.Orders.GetAllOrders)
		orders.PUT("/:id/status", middlewares.AdminMiddleware(), cfg.Orders.UpdateOrderStatus)
	}

	promotions := api.Group("/promotions")
	{
		promotions.GET("", cfg.Promotions.GetAllPromotions)
		promotions.GET("/validate/:code", cfg.Promotions.ValidatePromoCode)
		promotions.GET("/:id", cfg.Promotions.GetPromotion)
		promotions.POST("", append(adminRequired, cfg.Promotions.CreatePromotion)...)
		promotions.PUT("/:id", append(adminRequired, cfg.Promotions.UpdatePromotion)...)
		promotions.DELETE("/:id", append(adminRequired, cfg.Promotions.DeletePromotion)...)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "x-access-token", IdempotencyKeyHeader},
		ExposeHeaders: []string{"Content-Disposition", middlewares.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func healthHandler(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[hc.Name] = err.Error()
				continue
			}
			results[hc.Name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	}
}
