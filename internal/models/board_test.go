package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	for _, valid := range []string{"IDEATION", "VOTING", "DISCUSSION", "WRAP_UP"} {
		stage, err := ParseStage(valid)
		require.NoError(t, err)
		assert.Equal(t, Stage(valid), stage)
	}

	for _, invalid := range []string{"", "ideation", "DONE", "WRAPUP"} {
		_, err := ParseStage(invalid)
		assert.Error(t, err, "stage %q should be rejected", invalid)
	}
}

func TestSortTopics(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	t2 := t0.Add(2 * time.Minute)

	a := Topic{ID: uuid.New(), Title: "A", Votes: 3, CreatedAt: t1}
	b := Topic{ID: uuid.New(), Title: "B", Votes: 5, CreatedAt: t2}
	c := Topic{ID: uuid.New(), Title: "C", Votes: 3, CreatedAt: t0}

	topics := []Topic{a, b, c}
	SortTopics(topics)

	// Votes descending, ties broken by earlier createdAt.
	assert.Equal(t, []string{"B", "C", "A"}, []string{topics[0].Title, topics[1].Title, topics[2].Title})
}
