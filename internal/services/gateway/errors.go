package gateway

import (
	"fmt"
)

// TransportError reports a failed exchange with the knowledge service:
// the network was unreachable, the server answered non-2xx, or the body
// could not be parsed.
type TransportError struct {
	Op      string
	Status  int    // 0 when the request never completed
	Message string // server-provided error text, if any
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server returned status %d: %s", e.Op, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: request failed", e.Op)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a well-formed 2xx response that is missing
// fields the protocol requires, e.g. a trivia answer with neither a
// next question nor a final result. User-visible handling matches
// TransportError, but the two stay distinguishable for logs and tests.
type ProtocolError struct {
	Op     string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol violation: %s", e.Op, e.Reason)
}
