package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/leancoffee/internal/models"
)

// ErrNotFound is returned when a board or topic id does not resolve.
var ErrNotFound = errors.New("not found")

// Store defines what the application layer needs from persistence.
// Implementations must make IncrementVote atomic: concurrent votes on the
// same topic may never lose an update.
type Store interface {
	CreateBoard(ctx context.Context, title string) (*models.Board, error)
	// GetBoard returns the board aggregate with topics in display order.
	GetBoard(ctx context.Context, id uuid.UUID) (*models.Board, error)
	CreateTopic(ctx context.Context, boardID uuid.UUID, title string) (*models.Topic, error)
	GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error)
	IncrementVote(ctx context.Context, topicID uuid.UUID) error
	SetDiscussed(ctx context.Context, topicID uuid.UUID, discussed bool) error
	SetStage(ctx context.Context, boardID uuid.UUID, stage models.Stage) error
	// SetTimer sets the countdown target; nil clears an active timer.
	SetTimer(ctx context.Context, boardID uuid.UUID, timerEnd *time.Time) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
