package session

import (
	"github.com/service-chatbot-go/internal/models"
)

// Operation is the remote call a submitted input line maps to.
type Operation int

const (
	// OpNone means the input triggers no network operation; mode-local
	// actions (start/end trivia, manage actions) are explicit calls on
	// the controller, not routed through free-form input.
	OpNone Operation = iota
	// OpAsk sends the input as a free-form question.
	OpAsk
	// OpAnswerTrivia submits the input as an answer to the current
	// trivia question.
	OpAnswerTrivia
)

func (o Operation) String() string {
	switch o {
	case OpAsk:
		return "ask"
	case OpAnswerTrivia:
		return "answer_trivia"
	default:
		return "none"
	}
}

// Route decides which remote operation a submitted line triggers, given
// the active mode and whether a trivia game is running. Pure function,
// no side effects. Callers must reject empty input before routing.
func Route(mode models.Mode, triviaActive bool, rawInput string) Operation {
	if mode == models.ModeTrivia && triviaActive {
		return OpAnswerTrivia
	}
	if mode == models.ModeChat {
		return OpAsk
	}
	return OpNone
}
