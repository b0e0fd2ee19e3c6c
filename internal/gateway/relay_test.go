package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/leancoffee/internal/board"
	"github.com/mcdev12/leancoffee/internal/models"
	"github.com/mcdev12/leancoffee/internal/store"
)

type relayFixture struct {
	registry *Registry
	relay    *Relay
	app      *board.App
	store    *store.MemoryStore
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	registry := NewRegistry(DefaultConfig())
	st := store.NewMemoryStore(clockwork.NewFakeClock())
	app := board.NewApp(st, registry)
	relay := NewRelay(app, registry)

	return &relayFixture{registry: registry, relay: relay, app: app, store: st}
}

// drain fans out every queued broadcast synchronously, keeping delivery
// order deterministic in tests.
func (f *relayFixture) drain() {
	for {
		select {
		case message := <-f.registry.broadcastCh:
			f.registry.handleBroadcast(message)
		default:
			return
		}
	}
}

func intentFrame(t *testing.T, intent string, payload interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(Envelope{Type: intent, Data: data})
	require.NoError(t, err)
	return frame
}

func (f *relayFixture) seedBoardWithTopic(t *testing.T) (*models.Board, *models.Topic) {
	t.Helper()
	ctx := context.Background()
	b, err := f.app.CreateBoard(ctx, board.CreateBoardRequest{Title: "Retro"})
	require.NoError(t, err)
	topic, err := f.app.AddTopic(ctx, board.AddTopicRequest{BoardID: b.ID, Title: "Topic"})
	require.NoError(t, err)
	f.drain() // discard the seed topic:add, nobody has joined yet
	return b, topic
}

func TestRelayJoinRoom(t *testing.T) {
	f := newRelayFixture(t)
	conn := newTestConn(f.registry, 8)
	boardID := uuid.New()

	f.relay.HandleMessage(context.Background(), conn,
		intentFrame(t, IntentJoinRoom, JoinPayload{BoardID: boardID}))

	assert.Equal(t, 1, f.registry.RoomSize(boardID))
}

func TestRelayVoteBroadcastsCanonicalTopic(t *testing.T) {
	f := newRelayFixture(t)
	b, topic := f.seedBoardWithTopic(t)

	conn := newTestConn(f.registry, 8)
	f.registry.Join(conn, b.ID)

	f.relay.HandleMessage(context.Background(), conn,
		intentFrame(t, IntentVote, map[string]string{
			"boardId": b.ID.String(),
			"topicId": topic.ID.String(),
		}))
	f.drain()

	event := receiveEvent(t, conn)
	assert.Equal(t, "topic:vote", event.Type)

	var got models.Topic
	require.NoError(t, json.Unmarshal(event.Data, &got))
	assert.Equal(t, topic.ID, got.ID)
	assert.Equal(t, 1, got.Votes, "broadcast carries the post-increment value")
}

func TestRelayVoteUnknownTopicAcksOriginatorOnly(t *testing.T) {
	f := newRelayFixture(t)
	b, _ := f.seedBoardWithTopic(t)

	origin := newTestConn(f.registry, 8)
	bystander := newTestConn(f.registry, 8)
	f.registry.Join(origin, b.ID)
	f.registry.Join(bystander, b.ID)

	f.relay.HandleMessage(context.Background(), origin,
		intentFrame(t, IntentVote, map[string]string{
			"boardId": b.ID.String(),
			"topicId": uuid.New().String(),
		}))
	f.drain()

	event := receiveEvent(t, origin)
	assert.Equal(t, EventError, event.Type)
	var ack ErrorPayload
	require.NoError(t, json.Unmarshal(event.Data, &ack))
	assert.Equal(t, IntentVote, ack.Intent)

	assertNoEvent(t, bystander)
}

func TestRelaySetDiscussed(t *testing.T) {
	f := newRelayFixture(t)
	b, topic := f.seedBoardWithTopic(t)

	conn := newTestConn(f.registry, 8)
	f.registry.Join(conn, b.ID)

	f.relay.HandleMessage(context.Background(), conn,
		intentFrame(t, IntentSetDiscussed, map[string]interface{}{
			"boardId":   b.ID.String(),
			"topicId":   topic.ID.String(),
			"discussed": true,
		}))
	f.drain()

	event := receiveEvent(t, conn)
	assert.Equal(t, "topic:discussed", event.Type)
	var got models.Topic
	require.NoError(t, json.Unmarshal(event.Data, &got))
	assert.True(t, got.Discussed)
}

func TestRelaySetStageRejectsInvalidStage(t *testing.T) {
	f := newRelayFixture(t)
	b, _ := f.seedBoardWithTopic(t)

	conn := newTestConn(f.registry, 8)
	f.registry.Join(conn, b.ID)

	f.relay.HandleMessage(context.Background(), conn,
		intentFrame(t, IntentSetStage, map[string]string{
			"boardId": b.ID.String(),
			"stage":   "SHOUTING",
		}))
	f.drain()

	event := receiveEvent(t, conn)
	assert.Equal(t, EventError, event.Type)

	got, err := f.app.GetBoard(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageIdeation, got.Stage)
}

func TestRelaySetStageAndTimer(t *testing.T) {
	f := newRelayFixture(t)
	b, _ := f.seedBoardWithTopic(t)

	conn := newTestConn(f.registry, 8)
	f.registry.Join(conn, b.ID)

	f.relay.HandleMessage(context.Background(), conn,
		intentFrame(t, IntentSetStage, map[string]string{
			"boardId": b.ID.String(),
			"stage":   "VOTING",
		}))
	f.drain()

	event := receiveEvent(t, conn)
	assert.Equal(t, "board:stage", event.Type)

	end := time.Now().Add(5 * time.Minute).UTC().Format(time.RFC3339)
	f.relay.HandleMessage(context.Background(), conn,
		intentFrame(t, IntentSetTimer, map[string]interface{}{
			"boardId":  b.ID.String(),
			"timerEnd": end,
		}))
	f.drain()

	event = receiveEvent(t, conn)
	assert.Equal(t, "board:timer", event.Type)

	got, err := f.app.GetBoard(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageVoting, got.Stage)
	require.NotNil(t, got.TimerEnd)

	// null timerEnd clears the countdown
	f.relay.HandleMessage(context.Background(), conn,
		intentFrame(t, IntentSetTimer, map[string]interface{}{
			"boardId":  b.ID.String(),
			"timerEnd": nil,
		}))
	f.drain()
	receiveEvent(t, conn)

	got, err = f.app.GetBoard(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.TimerEnd)
}

func TestRelayMalformedFrame(t *testing.T) {
	f := newRelayFixture(t)
	conn := newTestConn(f.registry, 8)

	f.relay.HandleMessage(context.Background(), conn, []byte("not json"))

	event := receiveEvent(t, conn)
	assert.Equal(t, EventError, event.Type)
}

func TestRelayUnknownIntentIgnored(t *testing.T) {
	f := newRelayFixture(t)
	conn := newTestConn(f.registry, 8)

	f.relay.HandleMessage(context.Background(), conn,
		intentFrame(t, "board:explode", map[string]string{}))

	assertNoEvent(t, conn)
}

func TestRelayConcurrentVotes(t *testing.T) {
	f := newRelayFixture(t)
	b, topic := f.seedBoardWithTopic(t)

	const n = 20
	frame := intentFrame(t, IntentVote, map[string]string{
		"boardId": b.ID.String(),
		"topicId": topic.ID.String(),
	})

	done := make(chan struct{})
	for i := 0; i < n; i++ {
		conn := newTestConn(f.registry, 64)
		go func() {
			defer func() { done <- struct{}{} }()
			f.relay.HandleMessage(context.Background(), conn, frame)
		}()
	}
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("vote %d did not complete", i)
		}
	}

	got, err := f.store.GetTopic(context.Background(), topic.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.Votes)
}
