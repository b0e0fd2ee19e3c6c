package leanclient

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func newState(t *testing.T) *boardState {
	t.Helper()
	s := &boardState{}
	s.set(Board{
		ID:    "b1",
		Title: "Sprint Retro",
		Stage: StageIdeation,
	})
	return s
}

func TestApplyTopicAddUpsertsByID(t *testing.T) {
	s := newState(t)
	topic := Topic{ID: "t1", BoardID: "b1", Title: "Deploy flakiness"}

	changed, err := s.apply("topic:add", mustJSON(t, topic))
	require.NoError(t, err)
	assert.True(t, changed)

	// Receiving our own broadcast again must not duplicate the topic.
	changed, err = s.apply("topic:add", mustJSON(t, topic))
	require.NoError(t, err)
	assert.True(t, changed)

	board, ok := s.snapshot()
	require.True(t, ok)
	require.Len(t, board.Topics, 1)
	assert.Equal(t, "t1", board.Topics[0].ID)
}

func TestApplyVoteReplacesKnownTopic(t *testing.T) {
	s := newState(t)
	_, err := s.apply("topic:add", mustJSON(t, Topic{ID: "t1", BoardID: "b1", Title: "X"}))
	require.NoError(t, err)

	changed, err := s.apply("topic:vote", mustJSON(t, Topic{ID: "t1", BoardID: "b1", Title: "X", Votes: 3}))
	require.NoError(t, err)
	assert.True(t, changed)

	board, _ := s.snapshot()
	assert.Equal(t, 3, board.Topics[0].Votes)
}

func TestApplyVoteUnknownTopicIsNoOp(t *testing.T) {
	s := newState(t)

	changed, err := s.apply("topic:vote", mustJSON(t, Topic{ID: "ghost", BoardID: "b1", Votes: 9}))
	require.NoError(t, err)
	assert.False(t, changed)

	board, _ := s.snapshot()
	assert.Empty(t, board.Topics)
}

func TestApplyOtherBoardIgnored(t *testing.T) {
	s := newState(t)

	changed, err := s.apply("topic:add", mustJSON(t, Topic{ID: "t9", BoardID: "other"}))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.apply("board:stage", mustJSON(t, stagePayload{BoardID: "other", Stage: StageWrapUp}))
	require.NoError(t, err)
	assert.False(t, changed)

	board, _ := s.snapshot()
	assert.Empty(t, board.Topics)
	assert.Equal(t, StageIdeation, board.Stage)
}

func TestApplyStageOverwrites(t *testing.T) {
	s := newState(t)

	changed, err := s.apply("board:stage", mustJSON(t, stagePayload{BoardID: "b1", Stage: StageVoting}))
	require.NoError(t, err)
	assert.True(t, changed)

	board, _ := s.snapshot()
	assert.Equal(t, StageVoting, board.Stage)
}

func TestApplyTimerSetAndClear(t *testing.T) {
	s := newState(t)
	end := time.Now().Add(5 * time.Minute).UTC()

	_, err := s.apply("board:timer", mustJSON(t, timerPayload{BoardID: "b1", TimerEnd: &end}))
	require.NoError(t, err)
	board, _ := s.snapshot()
	require.NotNil(t, board.TimerEnd)
	assert.True(t, board.TimerEnd.Equal(end))

	_, err = s.apply("board:timer", mustJSON(t, timerPayload{BoardID: "b1", TimerEnd: nil}))
	require.NoError(t, err)
	board, _ = s.snapshot()
	assert.Nil(t, board.TimerEnd)
}

func TestApplyBeforeJoinIsIgnored(t *testing.T) {
	s := &boardState{}
	changed, err := s.apply("topic:add", mustJSON(t, Topic{ID: "t1", BoardID: "b1"}))
	require.NoError(t, err)
	assert.False(t, changed)

	_, ok := s.snapshot()
	assert.False(t, ok)
}

func TestApplyMalformedPayload(t *testing.T) {
	s := newState(t)
	_, err := s.apply("topic:add", json.RawMessage(`{"id": 42}`))
	assert.Error(t, err)

	// Local state stays intact after a bad event.
	board, ok := s.snapshot()
	require.True(t, ok)
	assert.Empty(t, board.Topics)
}

func TestSnapshotDisplayOrder(t *testing.T) {
	s := newState(t)
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for _, topic := range []Topic{
		{ID: "a", BoardID: "b1", Title: "A", Votes: 3, CreatedAt: t0.Add(time.Minute)},
		{ID: "b", BoardID: "b1", Title: "B", Votes: 5, CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "c", BoardID: "b1", Title: "C", Votes: 3, CreatedAt: t0},
	} {
		_, err := s.apply("topic:add", mustJSON(t, topic))
		require.NoError(t, err)
	}

	board, _ := s.snapshot()
	require.Len(t, board.Topics, 3)
	assert.Equal(t, []string{"B", "C", "A"},
		[]string{board.Topics[0].Title, board.Topics[1].Title, board.Topics[2].Title})
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := newState(t)
	_, err := s.apply("topic:add", mustJSON(t, Topic{ID: "t1", BoardID: "b1", Title: "X"}))
	require.NoError(t, err)

	board, _ := s.snapshot()
	board.Topics[0].Title = "mutated"
	board.Stage = StageWrapUp

	fresh, _ := s.snapshot()
	assert.Equal(t, "X", fresh.Topics[0].Title)
	assert.Equal(t, StageIdeation, fresh.Stage)
}
