// Package dto holds the wire shapes of rooms, questions and ticket queues shared by the HTTP
// and real-time transports.
package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/liveqa/backend/internal/models"
)

// Room is the transport representation of models.Room.
type Room struct {
	ID                uuid.UUID  `json:"id"`
	FriendlyName      string     `json:"friendly_name"`
	CreatedByUserID   uuid.UUID  `json:"created_by_user_id"`
	CreatedDate       time.Time  `json:"created_date"`
	CurrentQuestionID *uuid.UUID `json:"current_question_id"`
}

// Question is the transport representation of models.Question.
type Question struct {
	ID               uuid.UUID  `json:"id"`
	RoomID           uuid.UUID  `json:"room_id"`
	QuestionText     string     `json:"question_text"`
	AuthorName       *string    `json:"author_name"`
	IsAnswered       bool       `json:"is_answered"`
	IsApproved       bool       `json:"is_approved"`
	CreatedDate      time.Time  `json:"created_date"`
	LastModifiedDate *time.Time `json:"last_modified_date"`
}

// FromRoom maps a room entity. A nil room maps to nil.
func FromRoom(r *models.Room) *Room {
	if r == nil {
		return nil
	}
	return &Room{
		ID:                r.ID,
		FriendlyName:      r.FriendlyName,
		CreatedByUserID:   r.CreatedByUserID,
		CreatedDate:       r.CreatedDate,
		CurrentQuestionID: r.CurrentQuestionID,
	}
}

// FromQuestion maps a question entity. A nil question maps to nil.
func FromQuestion(q *models.Question) *Question {
	if q == nil {
		return nil
	}
	return &Question{
		ID:               q.ID,
		RoomID:           q.RoomID,
		QuestionText:     q.QuestionText,
		AuthorName:       q.AuthorName,
		IsAnswered:       q.IsAnswered,
		IsApproved:       q.IsApproved,
		CreatedDate:      q.CreatedDate,
		LastModifiedDate: q.LastModifiedDate,
	}
}

// FromRooms maps a slice of rooms, never returning nil.
func FromRooms(rooms []models.Room) []Room {
	out := make([]Room, 0, len(rooms))
	for i := range rooms {
		out = append(out, *FromRoom(&rooms[i]))
	}
	return out
}

// FromQuestions maps a slice of questions, never returning nil.
func FromQuestions(questions []models.Question) []Question {
	out := make([]Question, 0, len(questions))
	for i := range questions {
		out = append(out, *FromQuestion(&questions[i]))
	}
	return out
}

// TicketQueue is the transport representation of models.TicketQueue.
type TicketQueue struct {
	ID              uuid.UUID `json:"id"`
	FriendlyName    string    `json:"friendly_name"`
	CurrentNumber   int       `json:"current_number"`
	NextNumber      int       `json:"next_number"`
	Waiting         int       `json:"waiting"`
	CreatedByUserID uuid.UUID `json:"created_by_user_id"`
	CreatedDate     time.Time `json:"created_date"`
}

// FromTicketQueue maps a queue entity. A nil queue maps to nil.
func FromTicketQueue(q *models.TicketQueue) *TicketQueue {
	if q == nil {
		return nil
	}
	return &TicketQueue{
		ID:              q.ID,
		FriendlyName:    q.FriendlyName,
		CurrentNumber:   q.CurrentNumber,
		NextNumber:      q.NextNumber,
		Waiting:         q.Waiting(),
		CreatedByUserID: q.CreatedByUserID,
		CreatedDate:     q.CreatedDate,
	}
}

// FromTicketQueues maps a slice of queues, never returning nil.
func FromTicketQueues(queues []models.TicketQueue) []TicketQueue {
	out := make([]TicketQueue, 0, len(queues))
	for i := range queues {
		out = append(out, *FromTicketQueue(&queues[i]))
	}
	return out
}
