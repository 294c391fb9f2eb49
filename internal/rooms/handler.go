// Package rooms exposes the room API over HTTP and persists rooms in PostgreSQL.
package rooms

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/auth"
	"github.com/liveqa/backend/internal/dto"
	"github.com/liveqa/backend/internal/metrics"
	"github.com/liveqa/backend/internal/qa"
	"github.com/liveqa/backend/pkg/response"
)

// CreateRequest is the body for POST /rooms.
type CreateRequest struct {
	FriendlyName string `json:"friendly_name" binding:"required,max=200"`
}

// Handler handles room HTTP endpoints.
type Handler struct {
	service qa.RoomService
	logger  *zap.Logger
}

// NewHandler creates a rooms handler.
func NewHandler(service qa.RoomService, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the room routes. requireAuth guards the owner routes.
func (h *Handler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc) {
	r.GET("/rooms", h.List)
	r.GET("/rooms/my", requireAuth, h.ListMine)
	r.GET("/rooms/:id", h.GetByID)
	r.GET("/rooms/name/:friendlyName", h.GetByFriendlyName)
	r.POST("/rooms", requireAuth, h.Create)
	r.DELETE("/rooms/:id", requireAuth, h.Delete)
	r.PUT("/rooms/:id/current-question/:questionId", requireAuth, h.SetCurrentQuestion)
	r.PUT("/rooms/:id/current-question", requireAuth, h.ClearCurrentQuestion)
	r.DELETE("/rooms/:id/current-question", requireAuth, h.ClearCurrentQuestion)
}

// List handles GET /rooms.
func (h *Handler) List(c *gin.Context) {
	list, err := h.service.ListRooms(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, dto.FromRooms(list))
}

// ListMine handles GET /rooms/my.
func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := auth.UserIDFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.service.ListRoomsByOwner(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, dto.FromRooms(list))
}

// GetByID handles GET /rooms/:id.
func (h *Handler) GetByID(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	room, err := h.service.GetRoomByID(c.Request.Context(), roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if room == nil {
		response.NotFound(c, "room not found")
		return
	}
	response.OK(c, dto.FromRoom(room))
}

// GetByFriendlyName handles GET /rooms/name/:friendlyName.
func (h *Handler) GetByFriendlyName(c *gin.Context) {
	room, err := h.service.GetRoomByFriendlyName(c.Request.Context(), c.Param("friendlyName"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if room == nil {
		response.NotFound(c, "room not found")
		return
	}
	response.OK(c, dto.FromRoom(room))
}

// Create handles POST /rooms.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := auth.UserIDFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	room, err := h.service.CreateRoom(c.Request.Context(), req.FriendlyName, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	metrics.RoomsCreated.Inc()
	c.Header("Location", "/rooms/"+room.ID.String())
	response.Created(c, dto.FromRoom(room))
}

// Delete handles DELETE /rooms/:id.
func (h *Handler) Delete(c *gin.Context) {
	userID, roomID, ok := h.ownerRequest(c)
	if !ok {
		return
	}
	if err := h.service.DeleteRoom(c.Request.Context(), roomID, userID); err != nil {
		_ = c.Error(err)
		return
	}
	response.NoContent(c)
}

// SetCurrentQuestion handles PUT /rooms/:id/current-question/:questionId.
func (h *Handler) SetCurrentQuestion(c *gin.Context) {
	userID, roomID, ok := h.ownerRequest(c)
	if !ok {
		return
	}
	questionID, err := uuid.Parse(c.Param("questionId"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	if err := h.service.SetCurrentQuestion(c.Request.Context(), roomID, &questionID, userID); err != nil {
		_ = c.Error(err)
		return
	}
	response.NoContent(c)
}

// ClearCurrentQuestion handles PUT and DELETE /rooms/:id/current-question.
func (h *Handler) ClearCurrentQuestion(c *gin.Context) {
	userID, roomID, ok := h.ownerRequest(c)
	if !ok {
		return
	}
	if err := h.service.SetCurrentQuestion(c.Request.Context(), roomID, nil, userID); err != nil {
		_ = c.Error(err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) ownerRequest(c *gin.Context) (userID, roomID uuid.UUID, ok bool) {
	userID, ok = auth.UserIDFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return uuid.Nil, uuid.Nil, false
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, roomID, true
}
