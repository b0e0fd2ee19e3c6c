package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/leancoffee/internal/models"
)

// Key layout, all namespaced under "leancoffee:":
//   leancoffee:board:{id}         hash  title / stage / timer_end / created_at
//   leancoffee:board:{id}:topics  set   topic ids
//   leancoffee:topic:{id}         hash  board_id / title / votes / discussed / created_at
//
// Vote increments use HINCRBY, which Redis serializes; concurrent votes
// never lose an update.

// RedisStore persists boards and topics as Redis hashes.
type RedisStore struct {
	rdb   *redis.Client
	clock clockwork.Clock
}

// NewRedisStore creates a store backed by the given Redis options.
func NewRedisStore(opts *redis.Options, clock clockwork.Clock) *RedisStore {
	return &RedisStore{
		rdb:   redis.NewClient(opts),
		clock: clock,
	}
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func boardKey(id uuid.UUID) string       { return "leancoffee:board:" + id.String() }
func boardTopicsKey(id uuid.UUID) string { return "leancoffee:board:" + id.String() + ":topics" }
func topicKey(id uuid.UUID) string       { return "leancoffee:topic:" + id.String() }

func (s *RedisStore) CreateBoard(ctx context.Context, title string) (*models.Board, error) {
	board := models.Board{
		ID:        uuid.New(),
		Title:     title,
		Stage:     models.StageIdeation,
		Topics:    []models.Topic{},
		CreatedAt: s.clock.Now().UTC(),
	}
	fields := map[string]interface{}{
		"title":      board.Title,
		"stage":      string(board.Stage),
		"timer_end":  "",
		"created_at": board.CreatedAt.Format(time.RFC3339Nano),
	}
	if err := s.rdb.HSet(ctx, boardKey(board.ID), fields).Err(); err != nil {
		return nil, fmt.Errorf("failed to write board: %w", err)
	}
	return &board, nil
}

func (s *RedisStore) GetBoard(ctx context.Context, id uuid.UUID) (*models.Board, error) {
	hash, err := s.rdb.HGetAll(ctx, boardKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read board: %w", err)
	}
	if len(hash) == 0 {
		return nil, ErrNotFound
	}
	board, err := boardFromHash(id, hash)
	if err != nil {
		return nil, err
	}

	topicIDs, err := s.rdb.SMembers(ctx, boardTopicsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list board topics: %w", err)
	}
	for _, raw := range topicIDs {
		topicID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt topic id %q: %w", raw, err)
		}
		topic, err := s.GetTopic(ctx, topicID)
		if err != nil {
			return nil, err
		}
		board.Topics = append(board.Topics, *topic)
	}
	models.SortTopics(board.Topics)
	return board, nil
}

func (s *RedisStore) CreateTopic(ctx context.Context, boardID uuid.UUID, title string) (*models.Topic, error) {
	exists, err := s.rdb.Exists(ctx, boardKey(boardID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check board: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	topic := models.Topic{
		ID:        uuid.New(),
		BoardID:   boardID,
		Title:     title,
		CreatedAt: s.clock.Now().UTC(),
	}
	fields := map[string]interface{}{
		"board_id":   topic.BoardID.String(),
		"title":      topic.Title,
		"votes":      0,
		"discussed":  "0",
		"created_at": topic.CreatedAt.Format(time.RFC3339Nano),
	}
	if err := s.rdb.HSet(ctx, topicKey(topic.ID), fields).Err(); err != nil {
		return nil, fmt.Errorf("failed to write topic: %w", err)
	}
	if err := s.rdb.SAdd(ctx, boardTopicsKey(boardID), topic.ID.String()).Err(); err != nil {
		return nil, fmt.Errorf("failed to index topic: %w", err)
	}
	return &topic, nil
}

func (s *RedisStore) GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	hash, err := s.rdb.HGetAll(ctx, topicKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read topic: %w", err)
	}
	if len(hash) == 0 {
		return nil, ErrNotFound
	}
	return topicFromHash(id, hash)
}

func (s *RedisStore) IncrementVote(ctx context.Context, topicID uuid.UUID) error {
	if err := s.requireTopic(ctx, topicID); err != nil {
		return err
	}
	if err := s.rdb.HIncrBy(ctx, topicKey(topicID), "votes", 1).Err(); err != nil {
		return fmt.Errorf("failed to increment vote: %w", err)
	}
	return nil
}

func (s *RedisStore) SetDiscussed(ctx context.Context, topicID uuid.UUID, discussed bool) error {
	if err := s.requireTopic(ctx, topicID); err != nil {
		return err
	}
	val := "0"
	if discussed {
		val = "1"
	}
	if err := s.rdb.HSet(ctx, topicKey(topicID), "discussed", val).Err(); err != nil {
		return fmt.Errorf("failed to set discussed: %w", err)
	}
	return nil
}

func (s *RedisStore) SetStage(ctx context.Context, boardID uuid.UUID, stage models.Stage) error {
	if err := s.requireBoard(ctx, boardID); err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, boardKey(boardID), "stage", string(stage)).Err(); err != nil {
		return fmt.Errorf("failed to set stage: %w", err)
	}
	return nil
}

func (s *RedisStore) SetTimer(ctx context.Context, boardID uuid.UUID, timerEnd *time.Time) error {
	if err := s.requireBoard(ctx, boardID); err != nil {
		return err
	}
	val := ""
	if timerEnd != nil {
		val = timerEnd.UTC().Format(time.RFC3339Nano)
	}
	if err := s.rdb.HSet(ctx, boardKey(boardID), "timer_end", val).Err(); err != nil {
		return fmt.Errorf("failed to set timer: %w", err)
	}
	return nil
}

// Ping verifies Redis connectivity. Useful for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) requireBoard(ctx context.Context, id uuid.UUID) error {
	exists, err := s.rdb.Exists(ctx, boardKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check board: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) requireTopic(ctx context.Context, id uuid.UUID) error {
	exists, err := s.rdb.Exists(ctx, topicKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check topic: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil
}

func boardFromHash(id uuid.UUID, hash map[string]string) (*models.Board, error) {
	stage, err := models.ParseStage(hash["stage"])
	if err != nil {
		return nil, fmt.Errorf("corrupt board %s: %w", id, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, hash["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt board %s created_at: %w", id, err)
	}
	board := &models.Board{
		ID:        id,
		Title:     hash["title"],
		Stage:     stage,
		Topics:    []models.Topic{},
		CreatedAt: createdAt,
	}
	if raw := hash["timer_end"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt board %s timer_end: %w", id, err)
		}
		board.TimerEnd = &t
	}
	return board, nil
}

func topicFromHash(id uuid.UUID, hash map[string]string) (*models.Topic, error) {
	boardID, err := uuid.Parse(hash["board_id"])
	if err != nil {
		return nil, fmt.Errorf("corrupt topic %s board_id: %w", id, err)
	}
	votes, err := strconv.Atoi(hash["votes"])
	if err != nil {
		return nil, fmt.Errorf("corrupt topic %s votes: %w", id, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, hash["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt topic %s created_at: %w", id, err)
	}
	return &models.Topic{
		ID:        id,
		BoardID:   boardID,
		Title:     hash["title"],
		Votes:     votes,
		Discussed: hash["discussed"] == "1",
		CreatedAt: createdAt,
	}, nil
}
