package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/auth"
	"github.com/liveqa/backend/internal/middleware"
	"github.com/liveqa/backend/internal/models"
	"github.com/liveqa/backend/internal/qa"
)

type call struct {
	op         string
	questionID uuid.UUID
	callerID   uuid.UUID
}

// fakeQuestionService records calls and returns canned results.
type fakeQuestionService struct {
	questions []models.Question
	allow     bool
	clientIDs []string
	calls     []call
	updates   int
	err       error
}

func (f *fakeQuestionService) ListQuestionsByRoom(context.Context, uuid.UUID) ([]models.Question, error) {
	return f.questions, f.err
}

func (f *fakeQuestionService) ListApprovedQuestionsByRoom(context.Context, uuid.UUID) ([]models.Question, error) {
	var out []models.Question
	for _, q := range f.questions {
		if q.IsApproved {
			out = append(out, q)
		}
	}
	return out, f.err
}

func (f *fakeQuestionService) GetQuestionByID(context.Context, uuid.UUID) (*models.Question, error) {
	return nil, f.err
}

func (f *fakeQuestionService) SubmitQuestion(_ context.Context, roomID uuid.UUID, text string, author *string) (*models.Question, error) {
	if f.err != nil {
		return nil, f.err
	}
	q := models.Question{ID: uuid.New(), RoomID: roomID, QuestionText: text, AuthorName: author, CreatedDate: time.Now().UTC()}
	f.questions = append(f.questions, q)
	return &q, nil
}

func (f *fakeQuestionService) UpdateQuestion(_ context.Context, id uuid.UUID, text string, author *string) (*models.Question, error) {
	f.updates++
	if f.err != nil {
		return nil, f.err
	}
	now := time.Now().UTC()
	return &models.Question{ID: id, QuestionText: text, AuthorName: author, LastModifiedDate: &now}, nil
}

func (f *fakeQuestionService) record(op string, questionID, callerID uuid.UUID) error {
	f.calls = append(f.calls, call{op: op, questionID: questionID, callerID: callerID})
	return f.err
}

func (f *fakeQuestionService) ApproveQuestion(_ context.Context, id, caller uuid.UUID) error {
	return f.record("approve", id, caller)
}

func (f *fakeQuestionService) MarkAsAnswered(_ context.Context, id, caller uuid.UUID) error {
	return f.record("answer", id, caller)
}

func (f *fakeQuestionService) DeleteQuestion(_ context.Context, id, caller uuid.UUID) error {
	return f.record("delete", id, caller)
}

func (f *fakeQuestionService) CanSubmitQuestion(_ context.Context, clientID string) bool {
	f.clientIDs = append(f.clientIDs, clientID)
	return f.allow
}

const testUserHeader = "X-Test-User"

func headerAuth(c *gin.Context) {
	id, err := uuid.Parse(c.GetHeader(testUserHeader))
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Set(auth.ContextUserID, id)
	c.Next()
}

func newRouter(svc qa.QuestionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Errors(zap.NewNop()))
	NewHandler(svc, zap.NewNop()).RegisterRoutes(r, headerAuth)
	return r
}

func request(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func TestSubmitQuestion(t *testing.T) {
	svc := &fakeQuestionService{allow: true}
	r := newRouter(svc)
	roomID := uuid.New()

	req := request(http.MethodPost, "/rooms/"+roomID.String()+"/questions", `{"question_text":"What's next?","author_name":"Ada"}`)
	req.Header.Set(ClientIDHeader, "browser-1")
	w := serve(r, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var q map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, "What's next?", q["question_text"])
	assert.Equal(t, "Ada", q["author_name"])
	assert.Equal(t, false, q["is_approved"])
	assert.Equal(t, roomID.String(), q["room_id"])
	assert.Equal(t, []string{"browser-1"}, svc.clientIDs)
}

func TestSubmitQuestionFallsBackToClientIP(t *testing.T) {
	svc := &fakeQuestionService{allow: true}
	r := newRouter(svc)

	req := request(http.MethodPost, "/rooms/"+uuid.NewString()+"/questions", `{"question_text":"anon?"}`)
	req.RemoteAddr = "203.0.113.7:51234"
	w := serve(r, req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"203.0.113.7"}, svc.clientIDs)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Contains(t, string(env.Data), `"author_name":null`)
}

func TestSubmitQuestionRateLimited(t *testing.T) {
	svc := &fakeQuestionService{allow: false}
	r := newRouter(svc)

	req := request(http.MethodPost, "/rooms/"+uuid.NewString()+"/questions", `{"question_text":"again?"}`)
	req.Header.Set(ClientIDHeader, "spammer")
	w := serve(r, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, rateLimitedMessage, env.Error)
	assert.Empty(t, svc.questions)
}

func TestSubmitQuestionValidation(t *testing.T) {
	svc := &fakeQuestionService{allow: true}
	r := newRouter(svc)
	path := "/rooms/" + uuid.NewString() + "/questions"

	assert.Equal(t, http.StatusBadRequest, serve(r, request(http.MethodPost, path, `{}`)).Code)
	long := strings.Repeat("x", 2001)
	assert.Equal(t, http.StatusBadRequest, serve(r, request(http.MethodPost, path, `{"question_text":"`+long+`"}`)).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, request(http.MethodPost, "/rooms/nope/questions", `{"question_text":"x"}`)).Code)

	svc.err = fmt.Errorf("submit: %w", qa.ErrInvalidOperation)
	assert.Equal(t, http.StatusBadRequest, serve(r, request(http.MethodPost, path, `{"question_text":"ok"}`)).Code)
}

func TestListQuestions(t *testing.T) {
	roomID := uuid.New()
	svc := &fakeQuestionService{questions: []models.Question{
		{ID: uuid.New(), RoomID: roomID, QuestionText: "first"},
		{ID: uuid.New(), RoomID: roomID, QuestionText: "second", IsApproved: true},
	}}
	r := newRouter(svc)

	var env envelope
	w := serve(r, request(http.MethodGet, "/rooms/"+roomID.String()+"/questions", ""))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var all []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 2)

	w = serve(r, request(http.MethodGet, "/rooms/"+roomID.String()+"/questions/approved", ""))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var approved []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	require.Len(t, approved, 1)
	assert.Equal(t, "second", approved[0]["question_text"])
}

func TestQuestionsCannotBeEditedOverHTTP(t *testing.T) {
	svc := &fakeQuestionService{}
	r := newRouter(svc)
	path := fmt.Sprintf("/rooms/%s/questions/%s", uuid.New(), uuid.New())

	assert.Equal(t, http.StatusNotFound, serve(r, request(http.MethodPut, path, `{"question_text":"spam"}`)).Code)

	req := request(http.MethodPut, path, `{"question_text":"spam"}`)
	req.Header.Set(testUserHeader, uuid.NewString())
	assert.Equal(t, http.StatusNotFound, serve(r, req).Code)
	assert.Zero(t, svc.updates)
}

func TestModerationRoutes(t *testing.T) {
	owner := uuid.New()
	questionID := uuid.New()
	base := fmt.Sprintf("/rooms/%s/questions/%s", uuid.New(), questionID)

	routes := []struct {
		method, path, op string
	}{
		{http.MethodPut, base + "/approve", "approve"},
		{http.MethodPut, base + "/answer", "answer"},
		{http.MethodDelete, base, "delete"},
	}
	for _, rt := range routes {
		t.Run(rt.op, func(t *testing.T) {
			svc := &fakeQuestionService{}
			r := newRouter(svc)

			assert.Equal(t, http.StatusUnauthorized, serve(r, request(rt.method, rt.path, "")).Code)

			req := request(rt.method, rt.path, "")
			req.Header.Set(testUserHeader, owner.String())
			assert.Equal(t, http.StatusNoContent, serve(r, req).Code)
			require.Len(t, svc.calls, 1)
			assert.Equal(t, call{op: rt.op, questionID: questionID, callerID: owner}, svc.calls[0])

			svc.err = fmt.Errorf("%s: %w", rt.op, qa.ErrUnauthorized)
			req = request(rt.method, rt.path, "")
			req.Header.Set(testUserHeader, uuid.NewString())
			assert.Equal(t, http.StatusForbidden, serve(r, req).Code)
		})
	}
}
