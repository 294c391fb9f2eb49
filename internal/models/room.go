package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a named Q&A session owned by a single user.
type Room struct {
	ID                uuid.UUID  `json:"id"`
	FriendlyName      string     `json:"friendly_name"`
	CreatedByUserID   uuid.UUID  `json:"created_by_user_id"`
	CreatedDate       time.Time  `json:"created_date"`
	CurrentQuestionID *uuid.UUID `json:"current_question_id,omitempty"`
	RowVersion        int64      `json:"-"`
}

// IsOwnedBy reports whether userID created the room.
func (r *Room) IsOwnedBy(userID uuid.UUID) bool {
	return r.CreatedByUserID == userID
}
