package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/qa"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(qa.InvalidOperation("Room %s not found", "x")))
	assert.Equal(t, http.StatusForbidden, StatusFor(qa.Unauthorized("nope")))
	assert.Equal(t, http.StatusConflict, StatusFor(fmt.Errorf("update: %w", qa.ErrConcurrencyConflict)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestErrorsRendersAttachedError(t *testing.T) {
	r := gin.New()
	r.Use(Errors(zap.NewNop()))
	r.GET("/invalid", func(c *gin.Context) { _ = c.Error(qa.InvalidOperation("Room not found")) })
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errors.New("pq: connection reset")) })
	r.GET("/written", func(c *gin.Context) {
		_ = c.Error(errors.New("ignored"))
		c.Status(http.StatusAccepted)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invalid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Room not found")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestErrorsKeepsExplicitStatusWithoutBody(t *testing.T) {
	r := gin.New()
	r.Use(Errors(zap.NewNop()))
	r.DELETE("/gone", func(c *gin.Context) {
		_ = c.Error(errors.New("audit log unavailable"))
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/gone", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
