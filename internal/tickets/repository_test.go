package tickets

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveqa/backend/internal/models"
	"github.com/liveqa/backend/internal/qa"
	"github.com/liveqa/backend/pkg/database/dbtest"
)

func newQueue(t *testing.T, repo *Repository) *models.TicketQueue {
	t.Helper()
	q := &models.TicketQueue{
		ID:              uuid.New(),
		FriendlyName:    "Queue " + uuid.NewString(),
		NextNumber:      1,
		CreatedByUserID: uuid.New(),
		CreatedDate:     time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(context.Background(), q))
	t.Cleanup(func() { dbtest.Exec(t, repo.pool, `DELETE FROM ticket_queues WHERE id = $1`, q.ID) })
	return q
}

func TestRepositoryCreateAndGet(t *testing.T) {
	repo := NewRepository(dbtest.Pool(t))
	ctx := context.Background()
	q := newQueue(t, repo)
	assert.Equal(t, int64(1), q.RowVersion)

	got, err := repo.GetByID(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, q.FriendlyName, got.FriendlyName)
	assert.Equal(t, 0, got.CurrentNumber)
	assert.Equal(t, 1, got.NextNumber)
	assert.True(t, q.CreatedDate.Equal(got.CreatedDate))

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepositoryIssueTicketConcurrently(t *testing.T) {
	repo := NewRepository(dbtest.Pool(t))
	ctx := context.Background()
	q := newQueue(t, repo)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		tickets = make(map[int]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			updated, err := repo.IssueTicket(ctx, q.ID)
			if !assert.NoError(t, err) || !assert.NotNil(t, updated) {
				return
			}
			mu.Lock()
			tickets[updated.NextNumber-1] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, tickets, n)

	got, err := repo.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, n+1, got.NextNumber)

	none, err := repo.IssueTicket(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRepositoryCallNextStopsWhenNobodyWaits(t *testing.T) {
	repo := NewRepository(dbtest.Pool(t))
	ctx := context.Background()
	q := newQueue(t, repo)

	none, err := repo.CallNext(ctx, q.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = repo.IssueTicket(ctx, q.ID)
	require.NoError(t, err)

	called, err := repo.CallNext(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, called)
	assert.Equal(t, 1, called.CurrentNumber)
	assert.Equal(t, 0, called.Waiting())

	none, err = repo.CallNext(ctx, q.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRepositoryResetAndDeleteCheckRowVersion(t *testing.T) {
	repo := NewRepository(dbtest.Pool(t))
	ctx := context.Background()
	q := newQueue(t, repo)

	stale := *q
	_, err := repo.IssueTicket(ctx, q.ID)
	require.NoError(t, err)

	stale.NextNumber = 1
	assert.ErrorIs(t, repo.Reset(ctx, &stale), qa.ErrConcurrencyConflict)
	assert.ErrorIs(t, repo.Delete(ctx, &stale), qa.ErrConcurrencyConflict)

	fresh, err := repo.GetByID(ctx, q.ID)
	require.NoError(t, err)
	fresh.CurrentNumber, fresh.NextNumber = 0, 1
	require.NoError(t, repo.Reset(ctx, fresh))

	got, err := repo.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NextNumber)

	require.NoError(t, repo.Delete(ctx, fresh))
	gone, err := repo.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRepositoryListNewestFirst(t *testing.T) {
	repo := NewRepository(dbtest.Pool(t))
	ctx := context.Background()
	older := newQueue(t, repo)
	newer := newQueue(t, repo)
	dbtest.Exec(t, repo.pool, `UPDATE ticket_queues SET created_date = now() - interval '1 hour' WHERE id = $1`, older.ID)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	pos := map[uuid.UUID]int{}
	for i, q := range list {
		pos[q.ID] = i
	}
	require.Contains(t, pos, older.ID)
	require.Contains(t, pos, newer.ID)
	assert.Less(t, pos[newer.ID], pos[older.ID])
}
