package api

import (
	"github.com/skobkin/rtsstop-web/internal/monitor"
	"github.com/skobkin/rtsstop-web/internal/selector"
)

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type         string          `json:"type"`
	IntervalMS   int             `json:"interval_ms"`
	DefaultTitle string          `json:"default_title"`
	Features     map[string]bool `json:"features"`
}

// NewHelloMessage constructs a hello payload.
func NewHelloMessage(intervalMS int, defaultTitle string, features map[string]bool) HelloMessage {
	return HelloMessage{
		Type:         "hello",
		IntervalMS:   intervalMS,
		DefaultTitle: defaultTitle,
		Features:     features,
	}
}

// EventMessage carries one monitor event. Type is the event kind.
type EventMessage struct {
	Type  string        `json:"type"`
	TS    int64         `json:"ts"`
	State monitor.State `json:"state"`
}

// NewEventMessage converts a monitor event for transport.
func NewEventMessage(event monitor.Event) EventMessage {
	return EventMessage{
		Type:  string(event.Kind),
		TS:    event.Timestamp.UnixMilli(),
		State: event.State,
	}
}

// StateMessage answers an explicit state request.
type StateMessage struct {
	Type  string        `json:"type"`
	State monitor.State `json:"state"`
}

// NewStateMessage constructs a state payload.
func NewStateMessage(state monitor.State) StateMessage {
	return StateMessage{
		Type:  "state",
		State: state,
	}
}

// CandidatesMessage lists every process that passed filtering on the last
// tick, best first.
type CandidatesMessage struct {
	Type       string               `json:"type"`
	Candidates []selector.Candidate `json:"candidates"`
}

// NewCandidatesMessage constructs a candidates payload. A nil list is sent
// as an empty array.
func NewCandidatesMessage(candidates []selector.Candidate) CandidatesMessage {
	if candidates == nil {
		candidates = []selector.Candidate{}
	}
	return CandidatesMessage{Type: "candidates", Candidates: candidates}
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorMessage constructs an error payload.
func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: "error", Message: message}
}

// ClientMessage is a generic envelope used for decoding inbound client messages.
type ClientMessage struct {
	Type string `json:"type"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}

// NewPongMessage constructs a pong payload.
func NewPongMessage() PongMessage {
	return PongMessage{Type: "pong"}
}
