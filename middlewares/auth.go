package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shop-service/models"
	"shop-service/services"
)

const (
	userIDKey = "userID"
	userKey   = "user"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware requires a valid token in x-access-token or
// Authorization, with or without a "Bearer " prefix, and stores the
// user in the gin context.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("x-access-token")
		if token == "" {
			token = c.GetHeader("Authorization")
		}
		token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "No token provided!"})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			var se *services.Error
			if errors.As(err, &se) && se.Kind == services.KindUnauthorized {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": se.Message})
				return
			}
			slog.ErrorContext(c.Request.Context(), "Token check failed", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized!"})
			return
		}

		c.Set(userIDKey, user.ID)
		c.Set(userKey, user)
		c.Next()
	}
}

// AdminMiddleware must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Admin access required"})
			return
		}
		c.Next()
	}
}

func CurrentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}
