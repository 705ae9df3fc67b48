package session

import (
	"testing"

	"github.com/service-chatbot-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuestion(number, total int) *models.Question {
	return &models.Question{
		Number:  number,
		Total:   total,
		Prompt:  "What time does the library close?",
		Options: []string{"5pm", "8pm", "10pm", "Midnight"},
	}
}

func TestTriviaBegin(t *testing.T) {
	var tr Trivia
	require.NoError(t, tr.Begin(sampleQuestion(1, 5)))

	snap := tr.Snapshot()
	assert.True(t, snap.Active)
	assert.Equal(t, 0, snap.Score)
	assert.Equal(t, 0, snap.TotalAnswered)
	require.NotNil(t, snap.CurrentQuestion)
	assert.Equal(t, 1, snap.CurrentQuestion.Number)
}

func TestTriviaBeginWithoutQuestion(t *testing.T) {
	var tr Trivia
	assert.Error(t, tr.Begin(nil))
	assert.False(t, tr.Active())
}

func TestTriviaAdvanceReplacesQuestion(t *testing.T) {
	var tr Trivia
	require.NoError(t, tr.Begin(sampleQuestion(1, 5)))

	ended, err := tr.Advance(1, 1, sampleQuestion(2, 5))
	require.NoError(t, err)
	assert.False(t, ended)

	snap := tr.Snapshot()
	assert.True(t, snap.Active)
	assert.Equal(t, 1, snap.Score)
	assert.Equal(t, 1, snap.TotalAnswered)
	assert.Equal(t, 2, snap.CurrentQuestion.Number)
}

func TestTriviaAdvanceToCompletion(t *testing.T) {
	var tr Trivia
	require.NoError(t, tr.Begin(sampleQuestion(5, 5)))

	ended, err := tr.Advance(4, 5, nil)
	require.NoError(t, err)
	assert.True(t, ended)

	// Completed is transient; the session reduces straight to idle.
	snap := tr.Snapshot()
	assert.False(t, snap.Active)
	assert.Equal(t, 0, snap.Score)
	assert.Equal(t, 0, snap.TotalAnswered)
	assert.Nil(t, snap.CurrentQuestion)
}

func TestTriviaAdvanceWhileIdle(t *testing.T) {
	var tr Trivia
	_, err := tr.Advance(1, 1, sampleQuestion(2, 5))
	assert.Error(t, err)
}

func TestTriviaScoreNeverExceedsAnswered(t *testing.T) {
	var tr Trivia
	require.NoError(t, tr.Begin(sampleQuestion(1, 5)))

	_, err := tr.Advance(3, 2, sampleQuestion(2, 5))
	require.Error(t, err)

	// Failed transition leaves state unchanged.
	snap := tr.Snapshot()
	assert.True(t, snap.Active)
	assert.Equal(t, 0, snap.Score)
	assert.Equal(t, 0, snap.TotalAnswered)
	assert.Equal(t, 1, snap.CurrentQuestion.Number)
}

func TestTriviaInvariantAfterEveryTransition(t *testing.T) {
	var tr Trivia
	check := func() {
		snap := tr.Snapshot()
		assert.LessOrEqual(t, snap.Score, snap.TotalAnswered)
		assert.Equal(t, snap.Active, snap.CurrentQuestion != nil)
	}

	check()
	require.NoError(t, tr.Begin(sampleQuestion(1, 3)))
	check()
	_, err := tr.Advance(1, 1, sampleQuestion(2, 3))
	require.NoError(t, err)
	check()
	_, err = tr.Advance(1, 2, sampleQuestion(3, 3))
	require.NoError(t, err)
	check()
	_, err = tr.Advance(2, 3, nil)
	require.NoError(t, err)
	check()
	tr.Reset()
	check()
}

func TestTriviaSnapshotIsIsolated(t *testing.T) {
	var tr Trivia
	require.NoError(t, tr.Begin(sampleQuestion(1, 5)))

	snap := tr.Snapshot()
	snap.CurrentQuestion.Prompt = "mutated"
	snap.CurrentQuestion.Options[0] = "mutated"

	fresh := tr.Snapshot()
	assert.Equal(t, "What time does the library close?", fresh.CurrentQuestion.Prompt)
	assert.Equal(t, "5pm", fresh.CurrentQuestion.Options[0])
}
