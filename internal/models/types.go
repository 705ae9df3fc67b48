package models

import (
	"time"
)

// Mode identifies one of the mutually exclusive conversational contexts.
type Mode string

const (
	ModeChat   Mode = "chat"
	ModeTrivia Mode = "trivia"
	ModeManage Mode = "manage"
	ModeHelp   Mode = "help"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeChat, ModeTrivia, ModeManage, ModeHelp:
		return true
	}
	return false
}

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one utterance in the session timeline. Messages are
// immutable once appended to the log.
type Message struct {
	Sender          Sender
	Text            string
	Mode            Mode
	IsTriviaContext bool
	CreatedAt       time.Time
}

// Question is one multiple-choice trivia question as served by the backend.
type Question struct {
	Number  int      `json:"question_number"`
	Total   int      `json:"total_questions"`
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
}

// FinalResult is the terminal summary of a trivia game.
type FinalResult struct {
	Score      int     `json:"score"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message"`
}

// CacheEntry represents a cached answer to a knowledge-base question.
type CacheEntry struct {
	Question  string
	Answer    string
	CreatedAt time.Time
}
