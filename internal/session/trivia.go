package session

import (
	"fmt"

	"github.com/service-chatbot-go/internal/models"
)

// Trivia tracks an in-progress or idle quiz. A completed game is
// transient and immediately reduces back to idle, so only two resting
// states exist: active with a current question, or idle.
//
// Invariants: current question is non-nil iff the game is active, and
// score never exceeds the number of answered questions.
type Trivia struct {
	active  bool
	score   int
	total   int
	current *models.Question
}

// TriviaSnapshot is a read-only view of the quiz state.
type TriviaSnapshot struct {
	Active          bool
	Score           int
	TotalAnswered   int
	CurrentQuestion *models.Question
}

// Active reports whether a game is in progress.
func (t *Trivia) Active() bool {
	return t.active
}

// Current returns a copy of the question awaiting an answer, or nil
// when idle.
func (t *Trivia) Current() *models.Question {
	if t.current == nil {
		return nil
	}
	return cloneQuestion(t.current)
}

// Snapshot returns a copy of the quiz state.
func (t *Trivia) Snapshot() TriviaSnapshot {
	snap := TriviaSnapshot{
		Active:        t.active,
		Score:         t.score,
		TotalAnswered: t.total,
	}
	if t.current != nil {
		snap.CurrentQuestion = cloneQuestion(t.current)
	}
	return snap
}

// Begin transitions the quiz from idle to in progress with the first
// question. Score and answered count start at zero regardless of what
// the server echoes back.
func (t *Trivia) Begin(first *models.Question) error {
	if first == nil {
		return fmt.Errorf("trivia cannot begin without a first question")
	}
	t.active = true
	t.score = 0
	t.total = 0
	t.current = cloneQuestion(first)
	return nil
}

// Advance applies a scored answer. When next is non-nil the game stays
// in progress with the replacement question; a nil next completes the
// game and resets to idle. Returns whether the game ended.
func (t *Trivia) Advance(score, total int, next *models.Question) (ended bool, err error) {
	if !t.active {
		return false, fmt.Errorf("cannot advance an idle trivia session")
	}
	if score > total {
		return false, fmt.Errorf("server reported score %d above answered count %d", score, total)
	}
	if next == nil {
		t.Reset()
		return true, nil
	}
	t.score = score
	t.total = total
	t.current = cloneQuestion(next)
	return false, nil
}

// Reset returns the quiz to idle, discarding any game in progress.
func (t *Trivia) Reset() {
	t.active = false
	t.score = 0
	t.total = 0
	t.current = nil
}

func cloneQuestion(q *models.Question) *models.Question {
	c := *q
	c.Options = append([]string(nil), q.Options...)
	return &c
}
