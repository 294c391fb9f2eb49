package questions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liveqa/backend/internal/models"
	"github.com/liveqa/backend/internal/qa"
)

const questionColumns = `id, room_id, question_text, author_name, is_approved, is_answered,
	created_date, last_modified_date, row_version`

// Repository handles question persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a questions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByRoom returns questions of a room, oldest first.
func (r *Repository) ListByRoom(ctx context.Context, roomID uuid.UUID, approvedOnly bool) ([]models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE room_id = $1`
	if approvedOnly {
		query += ` AND is_approved`
	}
	query += ` ORDER BY created_date ASC`

	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.RoomID, &q.QuestionText, &q.AuthorName, &q.IsApproved, &q.IsAnswered,
			&q.CreatedDate, &q.LastModifiedDate, &q.RowVersion); err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

// GetByID returns a question with its parent room, or nil.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	const query = `SELECT q.id, q.room_id, q.question_text, q.author_name, q.is_approved, q.is_answered,
		q.created_date, q.last_modified_date, q.row_version,
		r.id, r.friendly_name, r.created_by_user_id, r.created_date, r.current_question_id, r.row_version
		FROM questions q JOIN rooms r ON r.id = q.room_id
		WHERE q.id = $1`
	var q models.Question
	var room models.Room
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&q.ID, &q.RoomID, &q.QuestionText, &q.AuthorName, &q.IsApproved, &q.IsAnswered,
		&q.CreatedDate, &q.LastModifiedDate, &q.RowVersion,
		&room.ID, &room.FriendlyName, &room.CreatedByUserID, &room.CreatedDate, &room.CurrentQuestionID, &room.RowVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.Room = &room
	return &q, nil
}

// Create inserts a new question.
func (r *Repository) Create(ctx context.Context, q *models.Question) error {
	const query = `INSERT INTO questions (id, room_id, question_text, author_name, is_approved, is_answered, created_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING row_version`
	return r.pool.QueryRow(ctx, query, q.ID, q.RoomID, q.QuestionText, q.AuthorName,
		q.IsApproved, q.IsAnswered, q.CreatedDate).Scan(&q.RowVersion)
}

// Update writes the mutable fields if the row version still matches.
func (r *Repository) Update(ctx context.Context, q *models.Question) error {
	const query = `UPDATE questions
		SET question_text = $2, author_name = $3, is_approved = $4, is_answered = $5,
			last_modified_date = $6, row_version = row_version + 1
		WHERE id = $1 AND row_version = $7
		RETURNING row_version`
	err := r.pool.QueryRow(ctx, query, q.ID, q.QuestionText, q.AuthorName, q.IsApproved, q.IsAnswered,
		q.LastModifiedDate, q.RowVersion).Scan(&q.RowVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return qa.ErrConcurrencyConflict
	}
	return err
}

// Delete removes a question. The rooms foreign key clears a current pointer to it.
func (r *Repository) Delete(ctx context.Context, q *models.Question) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1 AND row_version = $2`, q.ID, q.RowVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return qa.ErrConcurrencyConflict
	}
	return nil
}
