package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shop-service/middlewares"
	"shop-service/models"
	"shop-service/services"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type OrderController struct {
	checkout *services.CheckoutService
	orders   *services.OrderService
}

func NewOrderController(checkout *services.CheckoutService, orders *services.OrderService) *OrderController {
	return &OrderController{checkout: checkout, orders: orders}
}

func (oc *OrderController) CreateOrder(c *gin.Context) {
	defer recordOrderOperation(c, "create")

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := oc.checkout.PlaceOrder(c.Request.Context(), middlewares.CurrentUserID(c), req, c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Replayed {
		c.JSON(http.StatusOK, result.Order)
		return
	}
	c.JSON(http.StatusCreated, result.Order)
}

func (oc *OrderController) GetUserOrders(c *gin.Context) {
	defer recordOrderOperation(c, "list_user")

	orders, err := oc.orders.ListForUser(c.Request.Context(), middlewares.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (oc *OrderController) GetOrderDetails(c *gin.Context) {
	defer recordOrderOperation(c, "details")

	user := middlewares.CurrentUser(c)
	order, err := oc.orders.Get(c.Request.Context(), c.Param("id"), user.ID, user.IsAdmin)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (oc *OrderController) GetAllOrders(c *gin.Context) {
	defer recordOrderOperation(c, "list_all")

	orders, err := oc.orders.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	defer recordOrderOperation(c, "update_status")

	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid status value"})
		return
	}
	order, err := oc.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (oc *OrderController) VerifyPurchase(c *gin.Context) {
	ok, err := oc.orders.VerifyPurchase(c.Request.Context(), middlewares.CurrentUserID(c), c.Param("productId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": ok})
}
