package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/leancoffee/internal/models"
)

// MemoryStore keeps boards and topics in process memory. It is the
// default backend for local development and the contract double in tests.
type MemoryStore struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	boards map[uuid.UUID]*models.Board
	topics map[uuid.UUID]*models.Topic
}

// NewMemoryStore creates an empty in-memory store. The clock is injected
// so tests can control createdAt timestamps.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock:  clock,
		boards: make(map[uuid.UUID]*models.Board),
		topics: make(map[uuid.UUID]*models.Topic),
	}
}

func (s *MemoryStore) CreateBoard(ctx context.Context, title string) (*models.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board := &models.Board{
		ID:        uuid.New(),
		Title:     title,
		Stage:     models.StageIdeation,
		CreatedAt: s.clock.Now().UTC(),
	}
	s.boards[board.ID] = board

	out := *board
	out.Topics = []models.Topic{}
	return &out, nil
}

func (s *MemoryStore) GetBoard(ctx context.Context, id uuid.UUID) (*models.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := *board
	out.Topics = []models.Topic{}
	for _, t := range s.topics {
		if t.BoardID == id {
			out.Topics = append(out.Topics, *t)
		}
	}
	models.SortTopics(out.Topics)
	return &out, nil
}

func (s *MemoryStore) CreateTopic(ctx context.Context, boardID uuid.UUID, title string) (*models.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[boardID]; !ok {
		return nil, ErrNotFound
	}

	topic := &models.Topic{
		ID:        uuid.New(),
		BoardID:   boardID,
		Title:     title,
		CreatedAt: s.clock.Now().UTC(),
	}
	s.topics[topic.ID] = topic

	out := *topic
	return &out, nil
}

func (s *MemoryStore) GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic, ok := s.topics[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *topic
	return &out, nil
}

func (s *MemoryStore) IncrementVote(ctx context.Context, topicID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic, ok := s.topics[topicID]
	if !ok {
		return ErrNotFound
	}
	topic.Votes++
	return nil
}

func (s *MemoryStore) SetDiscussed(ctx context.Context, topicID uuid.UUID, discussed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic, ok := s.topics[topicID]
	if !ok {
		return ErrNotFound
	}
	topic.Discussed = discussed
	return nil
}

func (s *MemoryStore) SetStage(ctx context.Context, boardID uuid.UUID, stage models.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	board.Stage = stage
	return nil
}

func (s *MemoryStore) SetTimer(ctx context.Context, boardID uuid.UUID, timerEnd *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	if timerEnd != nil {
		t := timerEnd.UTC()
		board.TimerEnd = &t
	} else {
		board.TimerEnd = nil
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
