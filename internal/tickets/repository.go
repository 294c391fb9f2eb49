package tickets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liveqa/backend/internal/models"
	"github.com/liveqa/backend/internal/qa"
)

const queueColumns = `id, friendly_name, current_number, next_number, created_by_user_id, created_date, row_version`

// Repository handles ticket queue persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a ticket queue repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all queues, newest first.
func (r *Repository) List(ctx context.Context) ([]models.TicketQueue, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+queueColumns+` FROM ticket_queues ORDER BY created_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.TicketQueue
	for rows.Next() {
		var q models.TicketQueue
		if err := scanQueue(rows, &q); err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

// GetByID returns a queue by ID, or nil.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.TicketQueue, error) {
	return r.getOne(ctx, `SELECT `+queueColumns+` FROM ticket_queues WHERE id = $1`, id)
}

// Create inserts a queue.
func (r *Repository) Create(ctx context.Context, q *models.TicketQueue) error {
	const query = `INSERT INTO ticket_queues (id, friendly_name, current_number, next_number, created_by_user_id, created_date)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING row_version`
	return r.pool.QueryRow(ctx, query, q.ID, q.FriendlyName, q.CurrentNumber, q.NextNumber,
		q.CreatedByUserID, q.CreatedDate).Scan(&q.RowVersion)
}

// IssueTicket bumps next_number in a single statement so concurrent callers
// never share a number.
func (r *Repository) IssueTicket(ctx context.Context, id uuid.UUID) (*models.TicketQueue, error) {
	return r.getOne(ctx, `UPDATE ticket_queues
		SET next_number = next_number + 1, row_version = row_version + 1
		WHERE id = $1 RETURNING `+queueColumns, id)
}

// CallNext bumps current_number when at least one ticket is waiting.
func (r *Repository) CallNext(ctx context.Context, id uuid.UUID) (*models.TicketQueue, error) {
	return r.getOne(ctx, `UPDATE ticket_queues
		SET current_number = current_number + 1, row_version = row_version + 1
		WHERE id = $1 AND current_number < next_number - 1 RETURNING `+queueColumns, id)
}

// Reset writes the numbers of q if the row version still matches.
func (r *Repository) Reset(ctx context.Context, q *models.TicketQueue) error {
	const query = `UPDATE ticket_queues
		SET current_number = $2, next_number = $3, row_version = row_version + 1
		WHERE id = $1 AND row_version = $4 RETURNING row_version`
	err := r.pool.QueryRow(ctx, query, q.ID, q.CurrentNumber, q.NextNumber, q.RowVersion).Scan(&q.RowVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return qa.ErrConcurrencyConflict
	}
	return err
}

// Delete removes the queue if the row version still matches.
func (r *Repository) Delete(ctx context.Context, q *models.TicketQueue) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ticket_queues WHERE id = $1 AND row_version = $2`, q.ID, q.RowVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return qa.ErrConcurrencyConflict
	}
	return nil
}

func (r *Repository) getOne(ctx context.Context, query string, id uuid.UUID) (*models.TicketQueue, error) {
	var q models.TicketQueue
	err := scanQueue(r.pool.QueryRow(ctx, query, id), &q)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func scanQueue(row pgx.Row, q *models.TicketQueue) error {
	return row.Scan(&q.ID, &q.FriendlyName, &q.CurrentNumber, &q.NextNumber,
		&q.CreatedByUserID, &q.CreatedDate, &q.RowVersion)
}
