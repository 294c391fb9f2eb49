package qa

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liveqa/backend/internal/models"
)

// memStore mimics the Postgres repositories: getters return copies, updates
// are guarded by row version, deleting a room cascades to its questions.
type memStore struct {
	mu        sync.Mutex
	rooms     map[uuid.UUID]models.Room
	questions map[uuid.UUID]models.Question
}

func newMemStore() *memStore {
	return &memStore{
		rooms:     make(map[uuid.UUID]models.Room),
		questions: make(map[uuid.UUID]models.Question),
	}
}

type memRooms struct{ *memStore }
type memQuestions struct{ *memStore }

func (s memRooms) List(ctx context.Context) ([]models.Room, error) {
	return s.filterRooms(func(models.Room) bool { return true }), nil
}

func (s memRooms) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Room, error) {
	return s.filterRooms(func(r models.Room) bool { return r.CreatedByUserID == ownerID }), nil
}

func (s memRooms) filterRooms(keep func(models.Room) bool) []models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Room
	for _, r := range s.rooms {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.After(out[j].CreatedDate) })
	return out
}

func (s memRooms) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s memRooms) GetByFriendlyName(ctx context.Context, name string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if strings.EqualFold(r.FriendlyName, name) {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (s memRooms) Create(ctx context.Context, room *models.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if strings.EqualFold(r.FriendlyName, room.FriendlyName) {
			return ErrDuplicateName
		}
	}
	room.RowVersion = 1
	s.rooms[room.ID] = *room
	return nil
}

func (s memRooms) UpdateCurrentQuestion(ctx context.Context, room *models.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.rooms[room.ID]
	if !ok || stored.RowVersion != room.RowVersion {
		return ErrConcurrencyConflict
	}
	stored.CurrentQuestionID = room.CurrentQuestionID
	stored.RowVersion++
	s.rooms[room.ID] = stored
	room.RowVersion = stored.RowVersion
	return nil
}

func (s memRooms) DeleteWithQuestions(ctx context.Context, room *models.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, q := range s.questions {
		if q.RoomID == room.ID {
			delete(s.questions, id)
		}
	}
	delete(s.rooms, room.ID)
	return nil
}

func (s memQuestions) ListByRoom(ctx context.Context, roomID uuid.UUID, approvedOnly bool) ([]models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Question
	for _, q := range s.questions {
		if q.RoomID == roomID && (!approvedOnly || q.IsApproved) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.Before(out[j].CreatedDate) })
	return out, nil
}

func (s memQuestions) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, nil
	}
	if r, ok := s.rooms[q.RoomID]; ok {
		q.Room = &r
	}
	return &q, nil
}

func (s memQuestions) Create(ctx context.Context, q *models.Question) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q.RowVersion = 1
	stored := *q
	stored.Room = nil
	s.questions[q.ID] = stored
	return nil
}

func (s memQuestions) Update(ctx context.Context, q *models.Question) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.questions[q.ID]
	if !ok || stored.RowVersion != q.RowVersion {
		return ErrConcurrencyConflict
	}
	q.RowVersion++
	stored = *q
	stored.Room = nil
	s.questions[q.ID] = stored
	return nil
}

func (s memQuestions) Delete(ctx context.Context, q *models.Question) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.questions, q.ID)
	for id, r := range s.rooms {
		if r.CurrentQuestionID != nil && *r.CurrentQuestionID == q.ID {
			r.CurrentQuestionID = nil
			s.rooms[id] = r
		}
	}
	return nil
}

func (s *memStore) questionCount(roomID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.questions {
		if q.RoomID == roomID {
			n++
		}
	}
	return n
}

type event struct {
	name       string
	roomID     uuid.UUID
	questionID uuid.UUID
	question   *models.Question
	room       *models.Room
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) add(e event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.name)
	}
	return out
}

func (n *recordingNotifier) last() event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

func (n *recordingNotifier) QuestionSubmitted(q *models.Question) {
	n.add(event{name: "QuestionSubmitted", roomID: q.RoomID, questionID: q.ID, question: q})
}
func (n *recordingNotifier) QuestionApproved(q *models.Question) {
	n.add(event{name: "QuestionApproved", roomID: q.RoomID, questionID: q.ID, question: q})
}
func (n *recordingNotifier) QuestionAnswered(q *models.Question) {
	n.add(event{name: "QuestionAnswered", roomID: q.RoomID, questionID: q.ID, question: q})
}
func (n *recordingNotifier) QuestionDeleted(roomID, questionID uuid.UUID) {
	n.add(event{name: "QuestionDeleted", roomID: roomID, questionID: questionID})
}
func (n *recordingNotifier) CurrentQuestionChanged(roomID uuid.UUID, q *models.Question) {
	n.add(event{name: "CurrentQuestionChanged", roomID: roomID, question: q})
}
func (n *recordingNotifier) RoomCreated(r *models.Room) {
	n.add(event{name: "RoomCreated", roomID: r.ID, room: r})
}
func (n *recordingNotifier) RoomDeleted(roomID uuid.UUID) {
	n.add(event{name: "RoomDeleted", roomID: roomID})
}

type stubLimiter struct {
	allow bool
	calls []string
}

func (l *stubLimiter) TryConsume(ctx context.Context, clientID string) bool {
	l.calls = append(l.calls, clientID)
	return l.allow
}

// tickingClock returns strictly increasing timestamps so ordering is deterministic.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	store     *memStore
	notifier  *recordingNotifier
	limiter   *stubLimiter
	rooms     *Rooms
	questions *Questions
}

func newFixture() *fixture {
	store := newMemStore()
	notifier := &recordingNotifier{}
	limiter := &stubLimiter{allow: true}
	clock := tickingClock()

	rooms := NewRooms(memRooms{store}, memQuestions{store}, notifier, nil)
	rooms.now = clock
	questions := NewQuestions(memRooms{store}, memQuestions{store}, limiter, notifier, nil)
	questions.now = clock

	return &fixture{store: store, notifier: notifier, limiter: limiter, rooms: rooms, questions: questions}
}

func roomNamed(name string) *models.Room {
	return &models.Room{ID: uuid.New(), FriendlyName: name, CreatedByUserID: uuid.New(), CreatedDate: time.Now()}
}
