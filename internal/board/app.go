package board

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leancoffee/internal/models"
	"github.com/mcdev12/leancoffee/internal/store"
)

// Event names broadcast to a board's room. These match the wire protocol
// the web client listens on.
const (
	EventTopicAdd       = "topic:add"
	EventTopicVote      = "topic:vote"
	EventTopicDiscussed = "topic:discussed"
	EventBoardStage     = "board:stage"
	EventBoardTimer     = "board:timer"
)

// Broadcaster defines what the app layer needs to fan events out to a
// board's room. The room registry implements it; the app never touches
// connections directly.
type Broadcaster interface {
	Broadcast(boardID uuid.UUID, event string, payload interface{})
}

// ValidationError marks a request rejected before reaching the store.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// StagePayload is broadcast on stage changes.
type StagePayload struct {
	BoardID uuid.UUID    `json:"boardId"`
	Stage   models.Stage `json:"stage"`
}

// TimerPayload is broadcast on timer changes. A nil TimerEnd clears the
// countdown on every client.
type TimerPayload struct {
	BoardID  uuid.UUID  `json:"boardId"`
	TimerEnd *time.Time `json:"timerEnd"`
}

type CreateBoardRequest struct {
	Title string `json:"title" validate:"required"`
}

type AddTopicRequest struct {
	BoardID uuid.UUID `json:"boardId" validate:"required"`
	Title   string    `json:"title" validate:"required"`
}

type VoteRequest struct {
	BoardID uuid.UUID `json:"boardId" validate:"required"`
	TopicID uuid.UUID `json:"topicId" validate:"required"`
}

type SetDiscussedRequest struct {
	BoardID   uuid.UUID `json:"boardId" validate:"required"`
	TopicID   uuid.UUID `json:"topicId" validate:"required"`
	Discussed bool      `json:"discussed"`
}

type SetStageRequest struct {
	BoardID uuid.UUID    `json:"boardId" validate:"required"`
	Stage   models.Stage `json:"stage" validate:"required,oneof=IDEATION VOTING DISCUSSION WRAP_UP"`
}

type SetTimerRequest struct {
	BoardID  uuid.UUID  `json:"boardId" validate:"required"`
	TimerEnd *time.Time `json:"timerEnd"`
}

// App handles board business logic. Every mutating operation follows
// write-then-read-then-broadcast: the canonical record is re-read after
// the store mutation and that record is what reaches the room, so
// concurrent votes resolve to correct post-increment values instead of
// stale client-held ones.
type App struct {
	store       store.Store
	broadcaster Broadcaster
	validate    *validator.Validate
}

// NewApp creates a new board App.
func NewApp(st store.Store, broadcaster Broadcaster) *App {
	return &App{
		store:       st,
		broadcaster: broadcaster,
		validate:    validator.New(),
	}
}

// CreateBoard creates a new board in the IDEATION stage.
func (a *App) CreateBoard(ctx context.Context, req CreateBoardRequest) (*models.Board, error) {
	if err := a.validate.Struct(req); err != nil {
		return nil, &ValidationError{Message: "title is required"}
	}

	created, err := a.store.CreateBoard(ctx, req.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to create board: %w", err)
	}

	log.Info().
		Str("board_id", created.ID.String()).
		Str("title", created.Title).
		Msg("board created")
	return created, nil
}

// GetBoard retrieves the full board aggregate with topics in display order.
func (a *App) GetBoard(ctx context.Context, id uuid.UUID) (*models.Board, error) {
	board, err := a.store.GetBoard(ctx, id)
	if err != nil {
		return nil, err
	}
	return board, nil
}

// AddTopic creates a topic and broadcasts it to the board's room.
func (a *App) AddTopic(ctx context.Context, req AddTopicRequest) (*models.Topic, error) {
	if err := a.validate.Struct(req); err != nil {
		return nil, &ValidationError{Message: "boardId and title are required"}
	}

	topic, err := a.store.CreateTopic(ctx, req.BoardID, req.Title)
	if err != nil {
		return nil, err
	}

	a.broadcaster.Broadcast(req.BoardID, EventTopicAdd, topic)
	return topic, nil
}

// Vote increments a topic's vote count and broadcasts the canonical
// post-increment topic.
func (a *App) Vote(ctx context.Context, req VoteRequest) (*models.Topic, error) {
	if err := a.validate.Struct(req); err != nil {
		return nil, &ValidationError{Message: "boardId and topicId are required"}
	}

	if err := a.store.IncrementVote(ctx, req.TopicID); err != nil {
		return nil, err
	}
	topic, err := a.store.GetTopic(ctx, req.TopicID)
	if err != nil {
		return nil, err
	}

	a.broadcaster.Broadcast(req.BoardID, EventTopicVote, topic)
	return topic, nil
}

// SetDiscussed flips a topic's discussed flag and broadcasts the
// canonical topic.
func (a *App) SetDiscussed(ctx context.Context, req SetDiscussedRequest) (*models.Topic, error) {
	if err := a.validate.Struct(req); err != nil {
		return nil, &ValidationError{Message: "boardId and topicId are required"}
	}

	if err := a.store.SetDiscussed(ctx, req.TopicID, req.Discussed); err != nil {
		return nil, err
	}
	topic, err := a.store.GetTopic(ctx, req.TopicID)
	if err != nil {
		return nil, err
	}

	a.broadcaster.Broadcast(req.BoardID, EventTopicDiscussed, topic)
	return topic, nil
}

// SetStage moves a board to a new facilitation stage.
func (a *App) SetStage(ctx context.Context, req SetStageRequest) error {
	if err := a.validate.Struct(req); err != nil {
		return &ValidationError{Message: "boardId and a valid stage are required"}
	}

	if err := a.store.SetStage(ctx, req.BoardID, req.Stage); err != nil {
		return err
	}

	a.broadcaster.Broadcast(req.BoardID, EventBoardStage, StagePayload{
		BoardID: req.BoardID,
		Stage:   req.Stage,
	})
	return nil
}

// SetTimer sets or clears the board's shared countdown target. The server
// never expires the timer; clients compute remaining time locally.
func (a *App) SetTimer(ctx context.Context, req SetTimerRequest) error {
	if err := a.validate.Struct(req); err != nil {
		return &ValidationError{Message: "boardId is required"}
	}

	if err := a.store.SetTimer(ctx, req.BoardID, req.TimerEnd); err != nil {
		return err
	}

	a.broadcaster.Broadcast(req.BoardID, EventBoardTimer, TimerPayload{
		BoardID:  req.BoardID,
		TimerEnd: req.TimerEnd,
	})
	return nil
}
