package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shop-service/middlewares"
	"shop-service/models"
	"shop-service/services"
)

type ReviewController struct {
	reviews *services.ReviewService
	uploads Uploads
}

func NewReviewController(reviews *services.ReviewService, uploads Uploads) *ReviewController {
	return &ReviewController{reviews: reviews, uploads: uploads}
}

func (rc *ReviewController) GetProductReviews(c *gin.Context) {
	reviews, err := rc.reviews.ListByProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviews)
}

func (rc *ReviewController) GetUserReviews(c *gin.Context) {
	reviews, err := rc.reviews.ListByUser(c.Request.Context(), middlewares.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviews)
}

func (rc *ReviewController) CreateReview(c *gin.Context) {
	var req models.ReviewRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	image, err := rc.uploads.Save(c, "image")
	if err != nil {
		respondError(c, err)
		return
	}
	rv, err := rc.reviews.Create(c.Request.Context(), middlewares.CurrentUserID(c), c.Param("id"), req, image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rv)
}

func (rc *ReviewController) UpdateReview(c *gin.Context) {
	var req models.ReviewRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	image, err := rc.uploads.Save(c, "image")
	if err != nil {
		respondError(c, err)
		return
	}
	rv, err := rc.reviews.Update(c.Request.Context(), middlewares.CurrentUserID(c), c.Param("id"), c.Param("reviewId"), req, image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rv)
}
