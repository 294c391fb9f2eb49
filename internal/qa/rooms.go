package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/models"
)

// Rooms implements RoomService.
type Rooms struct {
	rooms     RoomStore
	questions QuestionStore
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewRooms creates the room service. A nil notifier disables fan-out.
func NewRooms(rooms RoomStore, questions QuestionStore, notifier Notifier, logger *zap.Logger) *Rooms {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rooms{rooms: rooms, questions: questions, notifier: notifier, logger: logger, now: time.Now}
}

// ListRooms returns every room, newest first.
func (s *Rooms) ListRooms(ctx context.Context) ([]models.Room, error) {
	return s.rooms.List(ctx)
}

// ListRoomsByOwner returns the rooms created by ownerID, newest first.
func (s *Rooms) ListRoomsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Room, error) {
	return s.rooms.ListByOwner(ctx, ownerID)
}

// GetRoomByID returns nil when the room does not exist.
func (s *Rooms) GetRoomByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return s.rooms.GetByID(ctx, id)
}

// GetRoomByFriendlyName matches the name case-insensitively.
func (s *Rooms) GetRoomByFriendlyName(ctx context.Context, name string) (*models.Room, error) {
	return s.rooms.GetByFriendlyName(ctx, name)
}

// CreateRoom persists a new room owned by ownerID and announces it to every
// connected client.
func (s *Rooms) CreateRoom(ctx context.Context, friendlyName string, ownerID uuid.UUID) (*models.Room, error) {
	friendlyName = strings.TrimSpace(friendlyName)
	if friendlyName == "" {
		return nil, InvalidOperation("Room name is required.")
	}
	if utf8.RuneCountInString(friendlyName) > models.MaxFriendlyNameLength {
		return nil, InvalidOperation("Room name must be at most %d characters.", models.MaxFriendlyNameLength)
	}

	existing, err := s.rooms.GetByFriendlyName(ctx, friendlyName)
	if err != nil {
		return nil, fmt.Errorf("lookup room name: %w", err)
	}
	if existing != nil {
		return nil, nameTaken(friendlyName)
	}

	room := &models.Room{
		ID:              uuid.New(),
		FriendlyName:    friendlyName,
		CreatedByUserID: ownerID,
		CreatedDate:     s.now().UTC(),
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			return nil, nameTaken(friendlyName)
		}
		return nil, fmt.Errorf("create room: %w", err)
	}

	s.logger.Info("room created", zap.String("room_id", room.ID.String()), zap.String("owner_id", ownerID.String()))
	s.notifier.RoomCreated(room)
	return room, nil
}

// SetCurrentQuestion points the room at an approved question of its own, or
// clears the pointer when questionID is nil.
func (s *Rooms) SetCurrentQuestion(ctx context.Context, roomID uuid.UUID, questionID *uuid.UUID, callerID uuid.UUID) error {
	room, err := s.ownedRoom(ctx, roomID, callerID, "Only the room owner can set the current question")
	if err != nil {
		return err
	}

	var current *models.Question
	if questionID != nil {
		q, err := s.questions.GetByID(ctx, *questionID)
		if err != nil {
			return fmt.Errorf("get question: %w", err)
		}
		if q == nil || q.RoomID != room.ID {
			return InvalidOperation("Question not found or does not belong to this room")
		}
		if !q.IsApproved {
			return InvalidOperation("Only approved questions can be set as current")
		}
		current = q
	}

	room.CurrentQuestionID = questionID
	if err := s.rooms.UpdateCurrentQuestion(ctx, room); err != nil {
		return fmt.Errorf("update current question: %w", err)
	}

	s.notifier.CurrentQuestionChanged(room.ID, current)
	return nil
}

// DeleteRoom removes the room together with all of its questions.
func (s *Rooms) DeleteRoom(ctx context.Context, roomID, callerID uuid.UUID) error {
	room, err := s.ownedRoom(ctx, roomID, callerID, "Only the room owner can delete the room")
	if err != nil {
		return err
	}
	if err := s.rooms.DeleteWithQuestions(ctx, room); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}

	s.logger.Info("room deleted", zap.String("room_id", roomID.String()))
	s.notifier.RoomDeleted(roomID)
	return nil
}

func (s *Rooms) ownedRoom(ctx context.Context, roomID, callerID uuid.UUID, denied string) (*models.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return nil, InvalidOperation("Room not found")
	}
	if !room.IsOwnedBy(callerID) {
		return nil, Unauthorized(denied)
	}
	return room, nil
}

func nameTaken(name string) error {
	return InvalidOperation("A room with the name '%s' already exists.", name)
}
