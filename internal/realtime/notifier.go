package realtime

import (
	"github.com/google/uuid"

	"github.com/liveqa/backend/internal/dto"
	"github.com/liveqa/backend/internal/models"
	"github.com/liveqa/backend/internal/qa"
)

// Server to client events.
const (
	EventQuestionSubmitted      = "QuestionSubmitted"
	EventQuestionApproved       = "QuestionApproved"
	EventQuestionAnswered       = "QuestionAnswered"
	EventQuestionDeleted        = "QuestionDeleted"
	EventCurrentQuestionChanged = "CurrentQuestionChanged"
	EventRoomCreated            = "RoomCreated"
	EventRoomDeleted            = "RoomDeleted"
	EventQueueCreated           = "QueueCreated"
	EventQueueUpdated           = "QueueUpdated"
	EventQueueDeleted           = "QueueDeleted"
)

// AllQueuesGroup receives every ticket queue change.
const AllQueuesGroup = "all-queues"

// GroupName is the participant group of a room.
func GroupName(roomID uuid.UUID) string {
	return "room-" + roomID.String()
}

// OwnerGroupName is the owner group of a room.
func OwnerGroupName(roomID uuid.UUID) string {
	return "room-" + roomID.String() + "-owner"
}

// QueueGroupName is the group watching a single ticket queue.
func QueueGroupName(queueID uuid.UUID) string {
	return "queue-" + queueID.String()
}

var (
	_ qa.Notifier      = (*Notifier)(nil)
	_ qa.QueueNotifier = (*Notifier)(nil)
)

// Notifier maps moderation and ticket queue events onto hub groups.
type Notifier struct {
	hub *Hub
}

// NewNotifier creates a notifier backed by hub.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// QuestionSubmitted tells the room owners about a question awaiting approval.
func (n *Notifier) QuestionSubmitted(q *models.Question) {
	n.hub.PublishToGroup(OwnerGroupName(q.RoomID), EventQuestionSubmitted, dto.FromQuestion(q))
}

// QuestionApproved makes a question visible to the room's participants.
func (n *Notifier) QuestionApproved(q *models.Question) {
	n.hub.PublishToGroup(GroupName(q.RoomID), EventQuestionApproved, dto.FromQuestion(q))
}

// QuestionAnswered is sent to the room group.
func (n *Notifier) QuestionAnswered(q *models.Question) {
	n.hub.PublishToGroup(GroupName(q.RoomID), EventQuestionAnswered, dto.FromQuestion(q))
}

// QuestionDeleted carries only the question id.
func (n *Notifier) QuestionDeleted(roomID, questionID uuid.UUID) {
	n.hub.PublishToGroup(GroupName(roomID), EventQuestionDeleted, questionID)
}

// CurrentQuestionChanged sends the new current question, or null when cleared.
func (n *Notifier) CurrentQuestionChanged(roomID uuid.UUID, q *models.Question) {
	n.hub.PublishToGroup(GroupName(roomID), EventCurrentQuestionChanged, dto.FromQuestion(q))
}

// RoomCreated is sent to every connection.
func (n *Notifier) RoomCreated(r *models.Room) {
	n.hub.PublishToAll(EventRoomCreated, dto.FromRoom(r))
}

// RoomDeleted tells the room's participants to leave.
func (n *Notifier) RoomDeleted(roomID uuid.UUID) {
	n.hub.PublishToGroup(GroupName(roomID), EventRoomDeleted, roomID)
}

// QueueCreated is sent to the all-queues group.
func (n *Notifier) QueueCreated(q *models.TicketQueue) {
	n.hub.PublishToGroup(AllQueuesGroup, EventQueueCreated, dto.FromTicketQueue(q))
}

// QueueUpdated is sent to the queue's own group and to all-queues.
func (n *Notifier) QueueUpdated(q *models.TicketQueue) {
	payload := dto.FromTicketQueue(q)
	n.hub.PublishToGroup(QueueGroupName(q.ID), EventQueueUpdated, payload)
	n.hub.PublishToGroup(AllQueuesGroup, EventQueueUpdated, payload)
}

// QueueDeleted carries only the queue id, to the same groups as QueueUpdated.
func (n *Notifier) QueueDeleted(queueID uuid.UUID) {
	n.hub.PublishToGroup(QueueGroupName(queueID), EventQueueDeleted, queueID)
	n.hub.PublishToGroup(AllQueuesGroup, EventQueueDeleted, queueID)
}
