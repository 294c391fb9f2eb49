package exports

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/liveqa/backend/internal/auth"
	"github.com/liveqa/backend/pkg/response"
)

// Handler handles transcript export endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates an exports handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the export routes behind requireAuth.
func (h *Handler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc) {
	r.POST("/rooms/:id/exports", requireAuth, h.Request)
	r.GET("/rooms/:id/exports/:exportId", requireAuth, h.Download)
}

// Request handles POST /rooms/:id/exports.
func (h *Handler) Request(c *gin.Context) {
	userID, ok := auth.UserIDFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	exportID, err := h.service.Request(c.Request.Context(), roomID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Accepted(c, gin.H{"export_id": exportID})
}

// Download handles GET /rooms/:id/exports/:exportId.
func (h *Handler) Download(c *gin.Context) {
	userID, ok := auth.UserIDFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	exportID, err := uuid.Parse(c.Param("exportId"))
	if err != nil {
		response.BadRequest(c, "invalid export id")
		return
	}
	dl, err := h.service.DownloadURL(c.Request.Context(), roomID, exportID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, dl)
}
