package gateway

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leancoffee/internal/board"
	"github.com/mcdev12/leancoffee/internal/models"
)

// BoardApp defines what the relay needs from the application layer.
// Every mutating call re-reads the canonical record and broadcasts it to
// the room before returning.
type BoardApp interface {
	Vote(ctx context.Context, req board.VoteRequest) (*models.Topic, error)
	SetDiscussed(ctx context.Context, req board.SetDiscussedRequest) (*models.Topic, error)
	SetStage(ctx context.Context, req board.SetStageRequest) error
	SetTimer(ctx context.Context, req board.SetTimerRequest) error
}

// Relay converts client intents into store mutations and room
// broadcasts. Each intent is wrapped in an error boundary: a bad event is
// acknowledged to its sender and logged, and never terminates the
// connection or the process.
type Relay struct {
	app      BoardApp
	registry *Registry
}

// NewRelay creates a new event relay.
func NewRelay(app BoardApp, registry *Registry) *Relay {
	return &Relay{
		app:      app,
		registry: registry,
	}
}

// HandleMessage processes one intent frame from a connection.
func (r *Relay) HandleMessage(ctx context.Context, conn *Connection, raw []byte) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Msg("malformed intent frame")
		r.nack(conn, "", "malformed message")
		return
	}

	err := r.dispatch(ctx, conn, envelope)
	if err != nil {
		metricIntents.WithLabelValues(envelope.Type, "error").Inc()
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Str("intent", envelope.Type).
			Msg("intent failed")
		r.nack(conn, envelope.Type, err.Error())
		return
	}
	metricIntents.WithLabelValues(envelope.Type, "ok").Inc()
}

func (r *Relay) dispatch(ctx context.Context, conn *Connection, envelope Envelope) error {
	switch envelope.Type {
	case IntentJoinRoom:
		var payload JoinPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return err
		}
		r.registry.Join(conn, payload.BoardID)
		return nil

	case IntentVote:
		var req board.VoteRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil {
			return err
		}
		_, err := r.app.Vote(ctx, req)
		return err

	case IntentSetDiscussed:
		var req board.SetDiscussedRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil {
			return err
		}
		_, err := r.app.SetDiscussed(ctx, req)
		return err

	case IntentSetStage:
		var req board.SetStageRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil {
			return err
		}
		return r.app.SetStage(ctx, req)

	case IntentSetTimer:
		var req board.SetTimerRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil {
			return err
		}
		return r.app.SetTimer(ctx, req)

	default:
		log.Debug().
			Str("connection_id", conn.ID).
			Str("intent", envelope.Type).
			Msg("unknown intent ignored")
		return nil
	}
}

// nack sends an error acknowledgment to the originating connection only.
func (r *Relay) nack(conn *Connection, intent, message string) {
	event, err := NewEvent(EventError, ErrorPayload{Intent: intent, Message: message})
	if err != nil {
		return
	}
	conn.sendEvent(event)
}
