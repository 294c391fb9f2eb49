package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liveqa/backend/internal/models"
	"github.com/liveqa/backend/internal/qa"
)

const uniqueViolation = "23505"

const roomColumns = `id, friendly_name, created_by_user_id, created_date, current_question_id, row_version`

// Repository handles room persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a rooms repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all rooms, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Room, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY created_date DESC`)
	if err != nil {
		return nil, err
	}
	return collectRooms(rows)
}

// ListByOwner returns the rooms created by ownerID, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Room, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms
		WHERE created_by_user_id = $1 ORDER BY created_date DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectRooms(rows)
}

// GetByID returns a room by ID, or nil.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return r.getOne(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
}

// GetByFriendlyName returns the room whose name matches ignoring case, or nil.
func (r *Repository) GetByFriendlyName(ctx context.Context, name string) (*models.Room, error) {
	return r.getOne(ctx, `SELECT `+roomColumns+` FROM rooms WHERE lower(friendly_name) = lower($1)`, name)
}

// Create inserts a room. A unique violation on the name maps to qa.ErrDuplicateName.
func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	const q = `INSERT INTO rooms (id, friendly_name, created_by_user_id, created_date)
		VALUES ($1, $2, $3, $4) RETURNING row_version`
	err := r.pool.QueryRow(ctx, q, room.ID, room.FriendlyName, room.CreatedByUserID, room.CreatedDate).
		Scan(&room.RowVersion)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return qa.ErrDuplicateName
	}
	return err
}

// UpdateCurrentQuestion sets the current question pointer if the row version still matches.
func (r *Repository) UpdateCurrentQuestion(ctx context.Context, room *models.Room) error {
	const q = `UPDATE rooms SET current_question_id = $2, row_version = row_version + 1
		WHERE id = $1 AND row_version = $3 RETURNING row_version`
	err := r.pool.QueryRow(ctx, q, room.ID, room.CurrentQuestionID, room.RowVersion).Scan(&room.RowVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return qa.ErrConcurrencyConflict
	}
	return err
}

// DeleteWithQuestions removes the room and its questions in one transaction.
func (r *Repository) DeleteWithQuestions(ctx context.Context, room *models.Room) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE rooms SET current_question_id = NULL WHERE id = $1`, room.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE room_id = $1`, room.ID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1 AND row_version = $2`, room.ID, room.RowVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return qa.ErrConcurrencyConflict
	}
	return tx.Commit(ctx)
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (*models.Room, error) {
	var room models.Room
	err := r.pool.QueryRow(ctx, query, arg).Scan(&room.ID, &room.FriendlyName, &room.CreatedByUserID,
		&room.CreatedDate, &room.CurrentQuestionID, &room.RowVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func collectRooms(rows pgx.Rows) ([]models.Room, error) {
	defer rows.Close()
	var list []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.FriendlyName, &room.CreatedByUserID,
			&room.CreatedDate, &room.CurrentQuestionID, &room.RowVersion); err != nil {
			return nil, err
		}
		list = append(list, room)
	}
	return list, rows.Err()
}
