package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MaxQuestionTextLength bounds QuestionText (runes).
	MaxQuestionTextLength = 2000
	// MaxAuthorNameLength bounds AuthorName (runes).
	MaxAuthorNameLength = 100
	// MaxFriendlyNameLength bounds Room.FriendlyName (runes).
	MaxFriendlyNameLength = 200
)

// Question is a submission to a room. It moves from unapproved to approved and
// optionally to answered; neither transition can be undone.
type Question struct {
	ID               uuid.UUID  `json:"id"`
	RoomID           uuid.UUID  `json:"room_id"`
	QuestionText     string     `json:"question_text"`
	AuthorName       *string    `json:"author_name,omitempty"`
	IsApproved       bool       `json:"is_approved"`
	IsAnswered       bool       `json:"is_answered"`
	CreatedDate      time.Time  `json:"created_date"`
	LastModifiedDate *time.Time `json:"last_modified_date,omitempty"`
	RowVersion       int64      `json:"-"`

	// Room is the parent room; set by GetByID.
	Room *Room `json:"-"`
}
