package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/qa"
	"github.com/liveqa/backend/pkg/response"
)

// Errors renders the last error attached with c.Error when the handler did
// not write a response or set a status itself.
func Errors(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || responded(c) {
			return
		}
		err := c.Errors.Last().Err
		status := StatusFor(err)
		if status == http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
			response.Internal(c, "internal server error")
			return
		}
		response.Error(c, status, err.Error())
	}
}

// responded reports whether the handler already chose a response. gin only
// records the header on c.Status, so a non-200 status counts as well.
func responded(c *gin.Context) bool {
	return c.Writer.Written() || c.Writer.Status() != http.StatusOK
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, qa.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, qa.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, qa.ErrConcurrencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
