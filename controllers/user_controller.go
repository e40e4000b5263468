package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shop-service/middlewares"
	"shop-service/models"
	"shop-service/services"
)

type UserController struct {
	auth    *services.AuthService
	uploads Uploads
}

func NewUserController(auth *services.AuthService, uploads Uploads) *UserController {
	return &UserController{auth: auth, uploads: uploads}
}

func (uc *UserController) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	image, err := uc.uploads.Save(c, "profileImage")
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := uc.auth.Register(c.Request.Context(), req, image)
	uc.respondAuth(c, result, err)
}

func (uc *UserController) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := uc.auth.Login(c.Request.Context(), req)
	uc.respondAuth(c, result, err)
}

func (uc *UserController) GoogleAuth(c *gin.Context) {
	var req models.SocialLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := uc.auth.Google(c.Request.Context(), req)
	uc.respondAuth(c, result, err)
}

func (uc *UserController) FacebookAuth(c *gin.Context) {
	var req models.SocialLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := uc.auth.Facebook(c.Request.Context(), req)
	uc.respondAuth(c, result, err)
}

func (uc *UserController) respondAuth(c *gin.Context, result *services.AuthResult, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result.AuthResponse)
}

func (uc *UserController) GetProfile(c *gin.Context) {
	u, err := uc.auth.Profile(c.Request.Context(), middlewares.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u.Response())
}

func (uc *UserController) UpdateProfile(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	image, err := uc.uploads.Save(c, "profileImage")
	if err != nil {
		respondError(c, err)
		return
	}
	u, err := uc.auth.UpdateProfile(c.Request.Context(), middlewares.CurrentUserID(c), req, image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully", "user": u.Response()})
}

func (uc *UserController) RegisterPushToken(c *gin.Context) {
	var req models.PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := uc.auth.RegisterPushToken(c.Request.Context(), middlewares.CurrentUserID(c), req.Token); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Push token registered successfully"})
}

func (uc *UserController) ClearPushToken(c *gin.Context) {
	if err := uc.auth.ClearPushToken(c.Request.Context(), middlewares.CurrentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Push token cleared successfully"})
}
