package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire frame for both directions: client intents and
// server events share the {type, data} shape.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client intent names. Server event names live in the board package
// because the app layer emits them.
const (
	IntentJoinRoom     = "board:join"
	IntentVote         = "topic:vote"
	IntentSetDiscussed = "topic:discussed"
	IntentSetStage     = "board:stage"
	IntentSetTimer     = "board:timer"
)

// EventError acknowledges a failed intent to the originating connection
// only. It is never broadcast.
const EventError = "error"

// JoinPayload carries a board:join intent.
type JoinPayload struct {
	BoardID uuid.UUID `json:"boardId"`
}

// ErrorPayload carries an error acknowledgment.
type ErrorPayload struct {
	Intent  string `json:"intent"`
	Message string `json:"message"`
}

// Event is a server-to-client message with its payload already encoded.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent wraps a payload in an Event envelope.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}
