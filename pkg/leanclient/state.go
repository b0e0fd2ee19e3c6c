package leanclient

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Stage is a board's facilitation phase.
type Stage string

const (
	StageIdeation   Stage = "IDEATION"
	StageVoting     Stage = "VOTING"
	StageDiscussion Stage = "DISCUSSION"
	StageWrapUp     Stage = "WRAP_UP"
)

// Topic mirrors the server's wire representation of a discussion item.
type Topic struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Title     string    `json:"title"`
	Votes     int       `json:"votes"`
	Discussed bool      `json:"discussed"`
	CreatedAt time.Time `json:"createdAt"`
}

// Board mirrors the server's wire representation of a board aggregate.
type Board struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Stage     Stage      `json:"stage"`
	TimerEnd  *time.Time `json:"timerEnd"`
	Topics    []Topic    `json:"topics"`
	CreatedAt time.Time  `json:"createdAt"`
}

type stagePayload struct {
	BoardID string `json:"boardId"`
	Stage   Stage  `json:"stage"`
}

type timerPayload struct {
	BoardID  string     `json:"boardId"`
	TimerEnd *time.Time `json:"timerEnd"`
}

// boardState is the local read model of one board. Updates are applied
// through apply regardless of whether they came from a server broadcast
// or a local optimistic action, so both paths share the same idempotent
// upsert-by-id semantics.
type boardState struct {
	mu    sync.RWMutex
	board *Board
}

// set replaces the whole local view, typically after a full re-fetch.
func (s *boardState) set(b Board) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := cloneBoard(b)
	s.board = &copied
}

// snapshot returns a deep copy of the local view with topics in display
// order (votes descending, earlier created first on ties).
func (s *boardState) snapshot() (Board, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.board == nil {
		return Board{}, false
	}
	out := cloneBoard(*s.board)
	sortTopics(out.Topics)
	return out, true
}

// apply merges one tagged update event into the local view. Events for a
// board other than the active one are ignored. Returns whether the view
// changed.
func (s *boardState) apply(eventType string, data json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.board == nil {
		return false, nil
	}

	switch eventType {
	case "topic:add":
		var topic Topic
		if err := json.Unmarshal(data, &topic); err != nil {
			return false, fmt.Errorf("bad topic:add payload: %w", err)
		}
		if topic.BoardID != s.board.ID {
			return false, nil
		}
		s.upsertTopic(topic)
		return true, nil

	case "topic:vote", "topic:discussed":
		var topic Topic
		if err := json.Unmarshal(data, &topic); err != nil {
			return false, fmt.Errorf("bad %s payload: %w", eventType, err)
		}
		if topic.BoardID != s.board.ID {
			return false, nil
		}
		// Replace only: a topic we never fetched stays unknown until the
		// next full refresh.
		return s.replaceTopic(topic), nil

	case "board:stage":
		var payload stagePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return false, fmt.Errorf("bad board:stage payload: %w", err)
		}
		if payload.BoardID != s.board.ID {
			return false, nil
		}
		s.board.Stage = payload.Stage
		return true, nil

	case "board:timer":
		var payload timerPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return false, fmt.Errorf("bad board:timer payload: %w", err)
		}
		if payload.BoardID != s.board.ID {
			return false, nil
		}
		s.board.TimerEnd = payload.TimerEnd
		return true, nil

	default:
		return false, nil
	}
}

// upsertTopic replaces an existing topic with the same id, else appends.
// Guards against the duplicate-add race when the creator also receives
// its own broadcast.
func (s *boardState) upsertTopic(topic Topic) {
	for i := range s.board.Topics {
		if s.board.Topics[i].ID == topic.ID {
			s.board.Topics[i] = topic
			return
		}
	}
	s.board.Topics = append(s.board.Topics, topic)
}

func (s *boardState) replaceTopic(topic Topic) bool {
	for i := range s.board.Topics {
		if s.board.Topics[i].ID == topic.ID {
			s.board.Topics[i] = topic
			return true
		}
	}
	return false
}

func cloneBoard(b Board) Board {
	out := b
	out.Topics = append([]Topic(nil), b.Topics...)
	if b.TimerEnd != nil {
		t := *b.TimerEnd
		out.TimerEnd = &t
	}
	return out
}

func sortTopics(topics []Topic) {
	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].Votes != topics[j].Votes {
			return topics[i].Votes > topics[j].Votes
		}
		return topics[i].CreatedAt.Before(topics[j].CreatedAt)
	})
}
