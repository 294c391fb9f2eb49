// Package exports lets room owners request a JSON transcript of a room and
// download it once the worker has written it to object storage.
package exports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/qa"
	"github.com/liveqa/backend/pkg/queue"
	"github.com/liveqa/backend/pkg/storage"
)

// Enqueuer schedules export jobs. *queue.Queue satisfies it.
type Enqueuer interface {
	EnqueueRoomExport(ctx context.Context, payload queue.RoomExportPayload) error
}

// ObjectStore locates finished exports. *storage.S3 satisfies it.
type ObjectStore interface {
	ExportsBucket() string
	Exists(ctx context.Context, bucket, key string) (bool, error)
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
}

// Download is a time-limited link to a finished export.
type Download struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service checks ownership and hands exports to the worker.
type Service struct {
	rooms  qa.RoomService
	queue  Enqueuer
	store  ObjectStore
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the export service.
func NewService(rooms qa.RoomService, q Enqueuer, store ObjectStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{rooms: rooms, queue: q, store: store, logger: logger, now: time.Now}
}

// Request queues a transcript export and returns its id.
func (s *Service) Request(ctx context.Context, roomID, callerID uuid.UUID) (uuid.UUID, error) {
	if err := s.checkOwner(ctx, roomID, callerID); err != nil {
		return uuid.Nil, err
	}
	exportID := uuid.New()
	err := s.queue.EnqueueRoomExport(ctx, queue.RoomExportPayload{
		ExportID:    exportID,
		RoomID:      roomID,
		RequestedBy: callerID,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue export: %w", err)
	}
	s.logger.Info("room export requested", zap.String("room_id", roomID.String()), zap.String("export_id", exportID.String()))
	return exportID, nil
}

// DownloadURL returns a presigned link once the export object exists.
func (s *Service) DownloadURL(ctx context.Context, roomID, exportID, callerID uuid.UUID) (*Download, error) {
	if err := s.checkOwner(ctx, roomID, callerID); err != nil {
		return nil, err
	}
	bucket := s.store.ExportsBucket()
	key := storage.ExportKey(roomID.String(), exportID.String())
	ok, err := s.store.Exists(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("check export: %w", err)
	}
	if !ok {
		return nil, qa.InvalidOperation("Export is not ready yet")
	}
	expires := s.store.PresignExpire()
	url, err := s.store.GeneratePresignedDownloadURL(ctx, bucket, key, expires)
	if err != nil {
		return nil, err
	}
	return &Download{URL: url, ExpiresAt: s.now().Add(expires).UTC()}, nil
}

func (s *Service) checkOwner(ctx context.Context, roomID, callerID uuid.UUID) error {
	room, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return qa.InvalidOperation("Room not found")
	}
	if !room.IsOwnedBy(callerID) {
		return qa.Unauthorized("Only the room owner can export the room")
	}
	return nil
}
