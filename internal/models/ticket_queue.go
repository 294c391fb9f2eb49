package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketQueue hands out sequential ticket numbers and tracks the one being served.
// NextNumber is the number the next TakeTicket returns; CurrentNumber is 0 until
// the first ticket is called.
type TicketQueue struct {
	ID              uuid.UUID `json:"id"`
	FriendlyName    string    `json:"friendly_name"`
	CurrentNumber   int       `json:"current_number"`
	NextNumber      int       `json:"next_number"`
	CreatedByUserID uuid.UUID `json:"created_by_user_id"`
	CreatedDate     time.Time `json:"created_date"`
	RowVersion      int64     `json:"-"`
}

// IsOwnedBy reports whether userID created the queue.
func (q *TicketQueue) IsOwnedBy(userID uuid.UUID) bool {
	return q.CreatedByUserID == userID
}

// Waiting is the number of issued tickets not yet called.
func (q *TicketQueue) Waiting() int {
	return q.NextNumber - 1 - q.CurrentNumber
}
