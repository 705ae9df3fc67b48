package session

import (
	"iter"

	"github.com/service-chatbot-go/internal/models"
)

// MessageLog is an append-only, insertion-ordered record of exchanged
// utterances. Messages are never mutated or removed once appended;
// clearing the log means replacing it with a single fresh greeting.
type MessageLog struct {
	messages []models.Message
}

// NewMessageLog creates an empty message log.
func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// Append adds a message to the end of the log.
func (l *MessageLog) Append(msg models.Message) {
	l.messages = append(l.messages, msg)
}

// Len returns the number of messages in the log.
func (l *MessageLog) Len() int {
	return len(l.messages)
}

// All returns a copy of the full timeline in insertion order.
func (l *MessageLog) All() []models.Message {
	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// VisibleFor returns a lazy, restartable sequence of the messages whose
// mode equals the argument, in insertion order.
func (l *MessageLog) VisibleFor(mode models.Mode) iter.Seq[models.Message] {
	return func(yield func(models.Message) bool) {
		for _, msg := range l.messages {
			if msg.Mode != mode {
				continue
			}
			if !yield(msg) {
				return
			}
		}
	}
}

// Reset replaces the log contents with a single greeting message.
func (l *MessageLog) Reset(greeting models.Message) {
	l.messages = []models.Message{greeting}
}
