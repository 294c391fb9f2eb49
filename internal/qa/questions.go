package qa

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/models"
)

// Questions implements QuestionService.
type Questions struct {
	rooms     RoomStore
	questions QuestionStore
	limiter   RateLimiter
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewQuestions creates the question service. A nil notifier disables fan-out.
func NewQuestions(rooms RoomStore, questions QuestionStore, limiter RateLimiter, notifier Notifier, logger *zap.Logger) *Questions {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Questions{
		rooms:     rooms,
		questions: questions,
		limiter:   limiter,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// ListQuestionsByRoom returns all questions of a room in submission order.
func (s *Questions) ListQuestionsByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Question, error) {
	return s.questions.ListByRoom(ctx, roomID, false)
}

// ListApprovedQuestionsByRoom returns the approved questions of a room in submission order.
func (s *Questions) ListApprovedQuestionsByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Question, error) {
	return s.questions.ListByRoom(ctx, roomID, true)
}

// GetQuestionByID returns the question with its parent room, or nil.
func (s *Questions) GetQuestionByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return s.questions.GetByID(ctx, id)
}

// SubmitQuestion stores a new unapproved question. Only the room owner's
// connections hear about it until it is approved.
func (s *Questions) SubmitQuestion(ctx context.Context, roomID uuid.UUID, text string, authorName *string) (*models.Question, error) {
	text, authorName, err := normalizeQuestion(text, authorName)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return nil, InvalidOperation("Room not found")
	}

	q := &models.Question{
		ID:           uuid.New(),
		RoomID:       roomID,
		QuestionText: text,
		AuthorName:   authorName,
		CreatedDate:  s.now().UTC(),
	}
	if err := s.questions.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}

	s.notifier.QuestionSubmitted(q)
	return q, nil
}

// UpdateQuestion edits text and author of a question that is still awaiting approval.
func (s *Questions) UpdateQuestion(ctx context.Context, questionID uuid.UUID, text string, authorName *string) (*models.Question, error) {
	text, authorName, err := normalizeQuestion(text, authorName)
	if err != nil {
		return nil, err
	}

	q, err := s.find(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q.IsApproved {
		return nil, InvalidOperation("Cannot update an approved question")
	}

	modified := s.now().UTC()
	q.QuestionText = text
	q.AuthorName = authorName
	q.LastModifiedDate = &modified
	if err := s.questions.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	return q, nil
}

// ApproveQuestion makes a question visible to every participant.
func (s *Questions) ApproveQuestion(ctx context.Context, questionID, callerID uuid.UUID) error {
	q, err := s.owned(ctx, questionID, callerID, "Only the room owner can approve questions")
	if err != nil {
		return err
	}
	q.IsApproved = true
	if err := s.questions.Update(ctx, q); err != nil {
		return fmt.Errorf("approve question: %w", err)
	}
	s.notifier.QuestionApproved(q)
	return nil
}

// MarkAsAnswered flags a question as answered.
func (s *Questions) MarkAsAnswered(ctx context.Context, questionID, callerID uuid.UUID) error {
	q, err := s.owned(ctx, questionID, callerID, "Only the room owner can mark questions as answered")
	if err != nil {
		return err
	}
	q.IsAnswered = true
	if err := s.questions.Update(ctx, q); err != nil {
		return fmt.Errorf("mark question answered: %w", err)
	}
	s.notifier.QuestionAnswered(q)
	return nil
}

// DeleteQuestion removes a question. If it was the room's current question the
// store clears the pointer.
func (s *Questions) DeleteQuestion(ctx context.Context, questionID, callerID uuid.UUID) error {
	q, err := s.owned(ctx, questionID, callerID, "Only the room owner can delete questions")
	if err != nil {
		return err
	}
	if err := s.questions.Delete(ctx, q); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	s.notifier.QuestionDeleted(q.RoomID, q.ID)
	return nil
}

// CanSubmitQuestion consults the rate limiter for clientID.
func (s *Questions) CanSubmitQuestion(ctx context.Context, clientID string) bool {
	if s.limiter == nil {
		return true
	}
	ok := s.limiter.TryConsume(ctx, clientID)
	if !ok {
		s.logger.Debug("question submission rate limited", zap.String("client_id", clientID))
	}
	return ok
}

func (s *Questions) find(ctx context.Context, questionID uuid.UUID) (*models.Question, error) {
	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	if q == nil {
		return nil, InvalidOperation("Question not found")
	}
	return q, nil
}

func (s *Questions) owned(ctx context.Context, questionID, callerID uuid.UUID, denied string) (*models.Question, error) {
	q, err := s.find(ctx, questionID)
	if err != nil {
		return nil, err
	}
	room := q.Room
	if room == nil {
		// Stores are expected to join the room; fall back to a lookup.
		room, err = s.rooms.GetByID(ctx, q.RoomID)
		if err != nil {
			return nil, fmt.Errorf("get room: %w", err)
		}
		if room == nil {
			return nil, InvalidOperation("Room not found")
		}
		q.Room = room
	}
	if !room.IsOwnedBy(callerID) {
		return nil, Unauthorized(denied)
	}
	return q, nil
}

func normalizeQuestion(text string, authorName *string) (string, *string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, InvalidOperation("Question text is required.")
	}
	if utf8.RuneCountInString(text) > models.MaxQuestionTextLength {
		return "", nil, InvalidOperation("Question text must be at most %d characters.", models.MaxQuestionTextLength)
	}
	if authorName != nil {
		name := strings.TrimSpace(*authorName)
		if name == "" {
			return text, nil, nil
		}
		if utf8.RuneCountInString(name) > models.MaxAuthorNameLength {
			return "", nil, InvalidOperation("Author name must be at most %d characters.", models.MaxAuthorNameLength)
		}
		authorName = &name
	}
	return text, authorName, nil
}
