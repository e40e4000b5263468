package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shop-service/models"
	"shop-service/services"
)

type PromotionController struct {
	promotions *services.PromotionService
}

func NewPromotionController(promotions *services.PromotionService) *PromotionController {
	return &PromotionController{promotions: promotions}
}

// GetAllPromotions lists promotions; ?active=true keeps only valid ones.
func (pc *PromotionController) GetAllPromotions(c *gin.Context) {
	promotions, err := pc.promotions.List(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, promotions)
}

func (pc *PromotionController) GetPromotion(c *gin.Context) {
	p, err := pc.promotions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (pc *PromotionController) CreatePromotion(c *gin.Context) {
	var req models.CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := pc.promotions.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (pc *PromotionController) UpdatePromotion(c *gin.Context) {
	var req models.UpdatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := pc.promotions.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (pc *PromotionController) DeletePromotion(c *gin.Context) {
	if err := pc.promotions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Promotion deleted"})
}

func (pc *PromotionController) ValidatePromoCode(c *gin.Context) {
	result, err := pc.promotions.Validate(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
