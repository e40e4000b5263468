package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"shop-service/metrics"
	"shop-service/services"
)

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindValidation, services.KindInsufficientStock, services.KindInvalidStatus:
		return http.StatusBadRequest
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes a service error as {"message": ...}. Unexpected
// errors are logged and reported without detail.
func respondError(c *gin.Context, err error) {
	var se *services.Error
	if errors.As(err, &se) && se.Kind != services.KindInternal {
		c.JSON(statusFor(se.Kind), gin.H{"message": se.Message})
		return
	}
	slog.ErrorContext(c.Request.Context(), "Request failed",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"request_id", c.GetString("requestID"),
		"user_id", c.GetString("userID"),
		"error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
}

// recordOrderOperation is deferred by order handlers to count outcomes by
// response status.
func recordOrderOperation(c *gin.Context, operation string) {
	status := c.Writer.Status()
	metrics.RecordOrderOperation(operation, status >= 200 && status < 300)
}
