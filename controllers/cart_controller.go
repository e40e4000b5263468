package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shop-service/middlewares"
	"shop-service/models"
	"shop-service/services"
)

type CartController struct {
	carts *services.CartService
}

func NewCartController(carts *services.CartService) *CartController {
	return &CartController{carts: carts}
}

func (cc *CartController) GetCart(c *gin.Context) {
	lines, err := cc.carts.Get(c.Request.Context(), middlewares.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CartResponse{Items: lines})
}

func (cc *CartController) UpdateCartItem(c *gin.Context) {
	var req models.UpdateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	lines, err := cc.carts.SetItem(c.Request.Context(), middlewares.CurrentUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CartResponse{Items: lines})
}

func (cc *CartController) RemoveCartItem(c *gin.Context) {
	lines, err := cc.carts.RemoveItem(c.Request.Context(), middlewares.CurrentUserID(c), c.Param("productId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CartResponse{Items: lines})
}

func (cc *CartController) ClearCart(c *gin.Context) {
	if err := cc.carts.Clear(c.Request.Context(), middlewares.CurrentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CartResponse{Items: []models.CartLine{}})
}
