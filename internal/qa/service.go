// Package qa implements the room and question moderation workflow: ownership
// checks, state transitions and the notifications that follow a successful write.
package qa

import (
	"context"

	"github.com/google/uuid"

	"github.com/liveqa/backend/internal/models"
)

// RoomService is the room API consumed by transports.
type RoomService interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListRoomsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Room, error)
	GetRoomByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomByFriendlyName(ctx context.Context, name string) (*models.Room, error)
	CreateRoom(ctx context.Context, friendlyName string, ownerID uuid.UUID) (*models.Room, error)
	SetCurrentQuestion(ctx context.Context, roomID uuid.UUID, questionID *uuid.UUID, callerID uuid.UUID) error
	DeleteRoom(ctx context.Context, roomID, callerID uuid.UUID) error
}

// QuestionService is the question API consumed by transports.
type QuestionService interface {
	ListQuestionsByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Question, error)
	ListApprovedQuestionsByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Question, error)
	GetQuestionByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	SubmitQuestion(ctx context.Context, roomID uuid.UUID, text string, authorName *string) (*models.Question, error)
	UpdateQuestion(ctx context.Context, questionID uuid.UUID, text string, authorName *string) (*models.Question, error)
	ApproveQuestion(ctx context.Context, questionID, callerID uuid.UUID) error
	MarkAsAnswered(ctx context.Context, questionID, callerID uuid.UUID) error
	DeleteQuestion(ctx context.Context, questionID, callerID uuid.UUID) error
	CanSubmitQuestion(ctx context.Context, clientID string) bool
}

// RoomStore persists rooms. Getters return (nil, nil) when nothing matches.
type RoomStore interface {
	List(ctx context.Context) ([]models.Room, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Room, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	// GetByFriendlyName matches case-insensitively.
	GetByFriendlyName(ctx context.Context, name string) (*models.Room, error)
	// Create returns ErrDuplicateName when the name is taken.
	Create(ctx context.Context, room *models.Room) error
	// UpdateCurrentQuestion writes room.CurrentQuestionID guarded by
	// room.RowVersion and refreshes RowVersion on success.
	UpdateCurrentQuestion(ctx context.Context, room *models.Room) error
	// DeleteWithQuestions removes the room and all of its questions atomically.
	DeleteWithQuestions(ctx context.Context, room *models.Room) error
}

// QuestionStore persists questions. Getters return (nil, nil) when nothing matches.
type QuestionStore interface {
	ListByRoom(ctx context.Context, roomID uuid.UUID, approvedOnly bool) ([]models.Question, error)
	// GetByID also loads the parent room into Question.Room.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	Create(ctx context.Context, q *models.Question) error
	// Update writes the mutable fields guarded by q.RowVersion.
	Update(ctx context.Context, q *models.Question) error
	Delete(ctx context.Context, q *models.Question) error
}

// Notifier fans state changes out to connected clients. Calls are best-effort
// and must not block on slow clients.
type Notifier interface {
	QuestionSubmitted(q *models.Question)
	QuestionApproved(q *models.Question)
	QuestionAnswered(q *models.Question)
	QuestionDeleted(roomID, questionID uuid.UUID)
	CurrentQuestionChanged(roomID uuid.UUID, q *models.Question)
	RoomCreated(r *models.Room)
	RoomDeleted(roomID uuid.UUID)
}

// RateLimiter gates anonymous writes per opaque client id.
type RateLimiter interface {
	TryConsume(ctx context.Context, clientID string) bool
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) QuestionSubmitted(*models.Question)                 {}
func (NopNotifier) QuestionApproved(*models.Question)                  {}
func (NopNotifier) QuestionAnswered(*models.Question)                  {}
func (NopNotifier) QuestionDeleted(uuid.UUID, uuid.UUID)               {}
func (NopNotifier) CurrentQuestionChanged(uuid.UUID, *models.Question) {}
func (NopNotifier) RoomCreated(*models.Room)                           {}
func (NopNotifier) RoomDeleted(uuid.UUID)                              {}

// TicketQueueService is the ticket queue API consumed by transports.
type TicketQueueService interface {
	ListQueues(ctx context.Context) ([]models.TicketQueue, error)
	GetQueueByID(ctx context.Context, id uuid.UUID) (*models.TicketQueue, error)
	CreateQueue(ctx context.Context, friendlyName string, ownerID uuid.UUID) (*models.TicketQueue, error)
	TakeTicket(ctx context.Context, queueID uuid.UUID) (int, error)
	HandleNext(ctx context.Context, queueID, callerID uuid.UUID) (*models.TicketQueue, error)
	ResetQueue(ctx context.Context, queueID, callerID uuid.UUID) error
	DeleteQueue(ctx context.Context, queueID, callerID uuid.UUID) error
	CanTakeTicket(ctx context.Context, clientID string) bool
}

// TicketQueueStore persists ticket queues. Getters return (nil, nil) when nothing matches.
type TicketQueueStore interface {
	List(ctx context.Context) ([]models.TicketQueue, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.TicketQueue, error)
	Create(ctx context.Context, q *models.TicketQueue) error
	// IssueTicket increments NextNumber in one statement and returns the
	// updated queue, or nil when the queue does not exist.
	IssueTicket(ctx context.Context, id uuid.UUID) (*models.TicketQueue, error)
	// CallNext increments CurrentNumber in one statement when a ticket is
	// waiting. It returns nil when the queue is missing or nobody waits.
	CallNext(ctx context.Context, id uuid.UUID) (*models.TicketQueue, error)
	// Reset rewinds the numbers guarded by q.RowVersion.
	Reset(ctx context.Context, q *models.TicketQueue) error
	// Delete removes the queue guarded by q.RowVersion.
	Delete(ctx context.Context, q *models.TicketQueue) error
}

// QueueNotifier fans ticket queue changes out to connected clients.
type QueueNotifier interface {
	QueueCreated(q *models.TicketQueue)
	QueueUpdated(q *models.TicketQueue)
	QueueDeleted(queueID uuid.UUID)
}

// NopQueueNotifier discards all queue events.
type NopQueueNotifier struct{}

func (NopQueueNotifier) QueueCreated(*models.TicketQueue) {}
func (NopQueueNotifier) QueueUpdated(*models.TicketQueue) {}
func (NopQueueNotifier) QueueDeleted(uuid.UUID)           {}
