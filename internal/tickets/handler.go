// Package tickets exposes ticket queues over HTTP and persists them in PostgreSQL.
package tickets

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/auth"
	"github.com/liveqa/backend/internal/dto"
	"github.com/liveqa/backend/internal/metrics"
	"github.com/liveqa/backend/internal/qa"
	"github.com/liveqa/backend/pkg/response"
)

// ClientIDHeader carries the opaque id used for rate limiting anonymous ticket takers.
const ClientIDHeader = "X-Client-Id"

const rateLimitedMessage = "Rate limit exceeded. Please wait before taking another ticket."

// CreateRequest is the body for POST /queues.
type CreateRequest struct {
	FriendlyName string `json:"friendly_name" binding:"required,max=200"`
}

// TicketResponse is returned by POST /queues/:id/tickets.
type TicketResponse struct {
	QueueID      uuid.UUID `json:"queue_id"`
	TicketNumber int       `json:"ticket_number"`
}

// Handler handles ticket queue HTTP endpoints.
type Handler struct {
	service qa.TicketQueueService
	logger  *zap.Logger
}

// NewHandler creates a tickets handler.
func NewHandler(service qa.TicketQueueService, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the queue routes. Taking a ticket is anonymous;
// everything that changes a queue otherwise requires a user.
func (h *Handler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc) {
	r.GET("/queues", h.List)
	r.GET("/queues/:id", h.GetByID)
	r.POST("/queues", requireAuth, h.Create)
	r.POST("/queues/:id/tickets", h.TakeTicket)
	r.POST("/queues/:id/next", requireAuth, h.HandleNext)
	r.POST("/queues/:id/reset", requireAuth, h.Reset)
	r.DELETE("/queues/:id", requireAuth, h.Delete)
}

// List handles GET /queues.
func (h *Handler) List(c *gin.Context) {
	list, err := h.service.ListQueues(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, dto.FromTicketQueues(list))
}

// GetByID handles GET /queues/:id.
func (h *Handler) GetByID(c *gin.Context) {
	queueID, ok := queueParam(c)
	if !ok {
		return
	}
	q, err := h.service.GetQueueByID(c.Request.Context(), queueID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if q == nil {
		response.NotFound(c, "queue not found")
		return
	}
	response.OK(c, dto.FromTicketQueue(q))
}

// Create handles POST /queues.
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
	q, err := h.service.CreateQueue(c.Request.Context(), req.FriendlyName, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Location", "/queues/"+q.ID.String())
	response.Created(c, dto.FromTicketQueue(q))
}

// TakeTicket handles POST /queues/:id/tickets.
func (h *Handler) TakeTicket(c *gin.Context) {
	queueID, ok := queueParam(c)
	if !ok {
		return
	}
	clientID := strings.TrimSpace(c.GetHeader(ClientIDHeader))
	if clientID == "" {
		clientID = c.ClientIP()
	}
	if !h.service.CanTakeTicket(c.Request.Context(), clientID) {
		metrics.RateLimitHits.Inc()
		response.TooManyRequests(c, rateLimitedMessage)
		return
	}

	number, err := h.service.TakeTicket(c.Request.Context(), queueID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	metrics.TicketsIssued.Inc()
	response.Created(c, TicketResponse{QueueID: queueID, TicketNumber: number})
}

// HandleNext handles POST /queues/:id/next.
func (h *Handler) HandleNext(c *gin.Context) {
	userID, queueID, ok := userRequest(c)
	if !ok {
		return
	}
	q, err := h.service.HandleNext(c.Request.Context(), queueID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, dto.FromTicketQueue(q))
}

// Reset handles POST /queues/:id/reset.
func (h *Handler) Reset(c *gin.Context) {
	userID, queueID, ok := userRequest(c)
	if !ok {
		return
	}
	if err := h.service.ResetQueue(c.Request.Context(), queueID, userID); err != nil {
		_ = c.Error(err)
		return
	}
	response.NoContent(c)
}

// Delete handles DELETE /queues/:id.
func (h *Handler) Delete(c *gin.Context) {
	userID, queueID, ok := userRequest(c)
	if !ok {
		return
	}
	if err := h.service.DeleteQueue(c.Request.Context(), queueID, userID); err != nil {
		_ = c.Error(err)
		return
	}
	response.NoContent(c)
}

func queueParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid queue id")
		return uuid.Nil, false
	}
	return id, true
}

func userRequest(c *gin.Context) (userID, queueID uuid.UUID, ok bool) {
	userID, ok = auth.UserIDFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return uuid.Nil, uuid.Nil, false
	}
	queueID, ok = queueParam(c)
	return userID, queueID, ok
}
