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

// ticketClientPrefix keeps ticket throttling apart from question throttling
// when both share one limiter.
const ticketClientPrefix = "ticket:"

// Queues implements TicketQueueService.
type Queues struct {
	queues   TicketQueueStore
	limiter  RateLimiter
	notifier QueueNotifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewQueues creates the ticket queue service. A nil notifier disables fan-out
// and a nil limiter lets every ticket request through.
func NewQueues(queues TicketQueueStore, limiter RateLimiter, notifier QueueNotifier, logger *zap.Logger) *Queues {
	if notifier == nil {
		notifier = NopQueueNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queues{queues: queues, limiter: limiter, notifier: notifier, logger: logger, now: time.Now}
}

// ListQueues returns every queue, newest first.
func (s *Queues) ListQueues(ctx context.Context) ([]models.TicketQueue, error) {
	return s.queues.List(ctx)
}

// GetQueueByID returns nil when the queue does not exist.
func (s *Queues) GetQueueByID(ctx context.Context, id uuid.UUID) (*models.TicketQueue, error) {
	return s.queues.GetByID(ctx, id)
}

// CreateQueue persists an empty queue owned by ownerID.
func (s *Queues) CreateQueue(ctx context.Context, friendlyName string, ownerID uuid.UUID) (*models.TicketQueue, error) {
	friendlyName = strings.TrimSpace(friendlyName)
	if friendlyName == "" {
		return nil, InvalidOperation("Queue name is required.")
	}
	if utf8.RuneCountInString(friendlyName) > models.MaxFriendlyNameLength {
		return nil, InvalidOperation("Queue name must be at most %d characters.", models.MaxFriendlyNameLength)
	}

	q := &models.TicketQueue{
		ID:              uuid.New(),
		FriendlyName:    friendlyName,
		CurrentNumber:   0,
		NextNumber:      1,
		CreatedByUserID: ownerID,
		CreatedDate:     s.now().UTC(),
	}
	if err := s.queues.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}

	s.logger.Info("queue created", zap.String("queue_id", q.ID.String()), zap.String("owner_id", ownerID.String()))
	s.notifier.QueueCreated(q)
	return q, nil
}

// TakeTicket hands out the next number of the queue.
func (s *Queues) TakeTicket(ctx context.Context, queueID uuid.UUID) (int, error) {
	q, err := s.queues.IssueTicket(ctx, queueID)
	if err != nil {
		return 0, fmt.Errorf("issue ticket: %w", err)
	}
	if q == nil {
		return 0, queueNotFound()
	}
	s.notifier.QueueUpdated(q)
	return q.NextNumber - 1, nil
}

// HandleNext calls the next waiting ticket. Any signed-in user may serve a queue.
func (s *Queues) HandleNext(ctx context.Context, queueID, callerID uuid.UUID) (*models.TicketQueue, error) {
	if _, err := s.find(ctx, queueID); err != nil {
		return nil, err
	}
	q, err := s.queues.CallNext(ctx, queueID)
	if err != nil {
		return nil, fmt.Errorf("call next ticket: %w", err)
	}
	if q == nil {
		return nil, InvalidOperation("No tickets are waiting")
	}
	s.logger.Debug("ticket called", zap.String("queue_id", queueID.String()),
		zap.Int("number", q.CurrentNumber), zap.String("caller_id", callerID.String()))
	s.notifier.QueueUpdated(q)
	return q, nil
}

// ResetQueue rewinds the queue to its initial numbers.
func (s *Queues) ResetQueue(ctx context.Context, queueID, callerID uuid.UUID) error {
	q, err := s.owned(ctx, queueID, callerID, "Only the creator can reset this queue")
	if err != nil {
		return err
	}
	q.CurrentNumber = 0
	q.NextNumber = 1
	if err := s.queues.Reset(ctx, q); err != nil {
		return fmt.Errorf("reset queue: %w", err)
	}
	s.notifier.QueueUpdated(q)
	return nil
}

// DeleteQueue removes the queue.
func (s *Queues) DeleteQueue(ctx context.Context, queueID, callerID uuid.UUID) error {
	q, err := s.owned(ctx, queueID, callerID, "Only the creator can delete this queue")
	if err != nil {
		return err
	}
	if err := s.queues.Delete(ctx, q); err != nil {
		return fmt.Errorf("delete queue: %w", err)
	}
	s.logger.Info("queue deleted", zap.String("queue_id", queueID.String()))
	s.notifier.QueueDeleted(queueID)
	return nil
}

// CanTakeTicket consults the rate limiter for clientID.
func (s *Queues) CanTakeTicket(ctx context.Context, clientID string) bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.TryConsume(ctx, ticketClientPrefix+clientID)
}

func (s *Queues) find(ctx context.Context, queueID uuid.UUID) (*models.TicketQueue, error) {
	q, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		return nil, fmt.Errorf("get queue: %w", err)
	}
	if q == nil {
		return nil, queueNotFound()
	}
	return q, nil
}

func (s *Queues) owned(ctx context.Context, queueID, callerID uuid.UUID, denied string) (*models.TicketQueue, error) {
	q, err := s.find(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !q.IsOwnedBy(callerID) {
		return nil, Unauthorized(denied)
	}
	return q, nil
}

func queueNotFound() error {
	return InvalidOperation("Queue not found")
}
