package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/dto"
	"github.com/liveqa/backend/internal/metrics"
	"github.com/liveqa/backend/internal/models"
	"github.com/liveqa/backend/pkg/queue"
	"github.com/liveqa/backend/pkg/storage"
)

// RoomReader loads rooms. *rooms.Repository satisfies it.
type RoomReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// QuestionLister loads the questions of a room. *questions.Repository satisfies it.
type QuestionLister interface {
	ListByRoom(ctx context.Context, roomID uuid.UUID, approvedOnly bool) ([]models.Question, error)
}

// Uploader writes export objects. *storage.S3 satisfies it.
type Uploader interface {
	ExportsBucket() string
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// JobSource feeds the worker loop. *queue.Queue satisfies it.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Transcript is the document written for an export.
type Transcript struct {
	ExportID   uuid.UUID      `json:"export_id"`
	ExportedAt time.Time      `json:"exported_at"`
	Room       *dto.Room      `json:"room"`
	Questions  []dto.Question `json:"questions"`
}

// ExportProcessor renders room transcripts and uploads them to S3.
type ExportProcessor struct {
	rooms     RoomReader
	questions QuestionLister
	s3        Uploader
	queue     JobSource
	logger    *zap.Logger
	now       func() time.Time
	backoff   time.Duration
}

// NewExportProcessor creates a transcript export processor.
func NewExportProcessor(rooms RoomReader, questions QuestionLister, s3 Uploader, q JobSource, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{
		rooms:     rooms,
		questions: questions,
		s3:        s3,
		queue:     q,
		logger:    logger,
		now:       time.Now,
		backoff:   queue.RetryBackoff,
	}
}

// Process executes one export job. A room deleted since the request is skipped.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRoomExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RoomExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	room, err := p.rooms.GetByID(ctx, payload.RoomID)
	if err != nil {
		return fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		p.logger.Info("room gone, skipping export", zap.String("room_id", payload.RoomID.String()))
		return nil
	}
	list, err := p.questions.ListByRoom(ctx, room.ID, false)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}

	body, err := json.MarshalIndent(Transcript{
		ExportID:   payload.ExportID,
		ExportedAt: p.now().UTC(),
		Room:       dto.FromRoom(room),
		Questions:  dto.FromQuestions(list),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	key := storage.ExportKey(room.ID.String(), payload.ExportID.String())
	if _, err := p.s3.Upload(ctx, p.s3.ExportsBucket(), key, storage.ContentTypeJSON, bytes.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	p.logger.Info("room export completed",
		zap.String("export_id", payload.ExportID.String()),
		zap.String("s3_key", key),
		zap.Int("questions", len(list)),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			metrics.ExportJobs.WithLabelValues("retried").Inc()
			if job.Attempt+1 >= queue.MaxRetries {
				metrics.ExportJobs.WithLabelValues("failed").Inc()
			}
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
			continue
		}
		metrics.ExportJobs.WithLabelValues("completed").Inc()
	}
}

func (p *ExportProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
