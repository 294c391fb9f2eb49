// Package questions exposes the question API over HTTP and persists questions in PostgreSQL.
package questions

import (
	"context"
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

// ClientIDHeader carries the opaque id used for rate limiting anonymous submitters.
const ClientIDHeader = "X-Client-Id"

const rateLimitedMessage = "Rate limit exceeded. Please wait before submitting another question."

// SubmitRequest is the body for POST /rooms/:id/questions.
type SubmitRequest struct {
	QuestionText string  `json:"question_text" binding:"required,max=2000"`
	AuthorName   *string `json:"author_name" binding:"omitempty,max=100"`
}

// Handler handles question HTTP endpoints.
type Handler struct {
	service qa.QuestionService
	logger  *zap.Logger
}

// NewHandler creates a questions handler.
func NewHandler(service qa.QuestionService, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the question routes. requireAuth guards the moderation routes.
// Editing a submitted question is not exposed over HTTP.
func (h *Handler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc) {
	r.GET("/rooms/:id/questions", h.List)
	r.GET("/rooms/:id/questions/approved", h.ListApproved)
	r.POST("/rooms/:id/questions", h.Submit)
	r.PUT("/rooms/:id/questions/:questionId/approve", requireAuth, h.Approve)
	r.PUT("/rooms/:id/questions/:questionId/answer", requireAuth, h.MarkAnswered)
	r.DELETE("/rooms/:id/questions/:questionId", requireAuth, h.Delete)
}

// List handles GET /rooms/:id/questions.
func (h *Handler) List(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	list, err := h.service.ListQuestionsByRoom(c.Request.Context(), roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, dto.FromQuestions(list))
}

// ListApproved handles GET /rooms/:id/questions/approved.
func (h *Handler) ListApproved(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	list, err := h.service.ListApprovedQuestionsByRoom(c.Request.Context(), roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, dto.FromQuestions(list))
}

// Submit handles POST /rooms/:id/questions. Anonymous participants are
// throttled by X-Client-Id, or by address when the header is absent.
func (h *Handler) Submit(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}

	clientID := strings.TrimSpace(c.GetHeader(ClientIDHeader))
	if clientID == "" {
		clientID = c.ClientIP()
	}
	if !h.service.CanSubmitQuestion(c.Request.Context(), clientID) {
		metrics.RateLimitHits.Inc()
		response.TooManyRequests(c, rateLimitedMessage)
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q, err := h.service.SubmitQuestion(c.Request.Context(), roomID, req.QuestionText, req.AuthorName)
	if err != nil {
		_ = c.Error(err)
		return
	}
	metrics.QuestionsSubmitted.Inc()
	response.Created(c, dto.FromQuestion(q))
}

// Approve handles PUT /rooms/:id/questions/:questionId/approve.
func (h *Handler) Approve(c *gin.Context) {
	h.moderate(c, h.service.ApproveQuestion)
}

// MarkAnswered handles PUT /rooms/:id/questions/:questionId/answer.
func (h *Handler) MarkAnswered(c *gin.Context) {
	h.moderate(c, h.service.MarkAsAnswered)
}

// Delete handles DELETE /rooms/:id/questions/:questionId.
func (h *Handler) Delete(c *gin.Context) {
	h.moderate(c, h.service.DeleteQuestion)
}

// moderate runs an owner-only operation. The room segment of the path is not
// consulted; ownership is resolved from the question's own room.
func (h *Handler) moderate(c *gin.Context, op func(ctx context.Context, questionID, callerID uuid.UUID) error) {
	userID, ok := auth.UserIDFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	questionID, ok := questionParam(c)
	if !ok {
		return
	}
	if err := op(c.Request.Context(), questionID, userID); err != nil {
		_ = c.Error(err)
		return
	}
	response.NoContent(c)
}

func roomParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return uuid.Nil, false
	}
	return id, true
}

func questionParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("questionId"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return uuid.Nil, false
	}
	return id, true
}
