// Package respond maps service results onto HTTP responses so every handler
// reports errors the same way.
package respond

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/diligence-portal/portal/internal/middleware"
	"github.com/diligence-portal/portal/internal/services"
	"github.com/gin-gonic/gin"
)

// Error writes the response for a failed service call. Invalid input is
// reported with its reason; unexpected errors are logged and answered with
// a generic message.
func Error(c *gin.Context, err error) {
	var input *services.InputError
	switch {
	case errors.As(err, &input):
		c.JSON(http.StatusBadRequest, gin.H{"error": input.Reason})
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have permission to perform this action"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", requestID,
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// BadRequest answers 400 with msg.
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// Pagination reads limit and offset query parameters. limit defaults to
// def and is capped at max.
func Pagination(c *gin.Context, def, max int) (limit, offset int) {
	limit = def
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > max {
		limit = max
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
