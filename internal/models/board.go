package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Stage defines the facilitation phase of a board.
type Stage string

const (
	StageIdeation   Stage = "IDEATION"
	StageVoting     Stage = "VOTING"
	StageDiscussion Stage = "DISCUSSION"
	StageWrapUp     Stage = "WRAP_UP"
)

// ParseStage validates a raw stage value from a client or the store.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageIdeation, StageVoting, StageDiscussion, StageWrapUp:
		return Stage(s), nil
	default:
		return "", fmt.Errorf("invalid stage %q", s)
	}
}

// Board represents a single Lean Coffee session.
type Board struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Stage     Stage      `json:"stage"`
	TimerEnd  *time.Time `json:"timerEnd"`
	Topics    []Topic    `json:"topics"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Topic represents a discussion item proposed within a board.
type Topic struct {
	ID        uuid.UUID `json:"id"`
	BoardID   uuid.UUID `json:"boardId"`
	Title     string    `json:"title"`
	Votes     int       `json:"votes"`
	Discussed bool      `json:"discussed"`
	CreatedAt time.Time `json:"createdAt"`
}

// SortTopics orders topics for display: votes descending, then earlier
// created first among ties.
func SortTopics(topics []Topic) {
	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].Votes != topics[j].Votes {
			return topics[i].Votes > topics[j].Votes
		}
		return topics[i].CreatedAt.Before(topics[j].CreatedAt)
	})
}
