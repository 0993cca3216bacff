// Package stream defines the streaming event protocol and the sinks that
// deliver it.
package stream

import (
	"github.com/higress-group/newsrag/search"
	"github.com/higress-group/newsrag/trace"
)

type EventType string

const (
	EventProgress       EventType = "progress"
	EventStreamChunk    EventType = "stream_chunk"
	EventStreamComplete EventType = "stream_complete"
	EventError          EventType = "error"
	// EventStreamReset tells the client to discard the chunks received so far;
	// generation restarts from the beginning.
	EventStreamReset EventType = "stream_reset"
)

// ActionSendMessage is the only client action accepted on the stream endpoint.
const ActionSendMessage = "sendMessage"

// ClientMessage is what a streaming client sends.
type ClientMessage struct {
	Action         string `json:"action"`
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Event is one server-to-client message. Fields are populated by type.
type Event struct {
	Type           EventType             `json:"type"`
	Step           string                `json:"step,omitempty"`
	Message        string                `json:"message,omitempty"`
	Chunk          string                `json:"chunk,omitempty"`
	FullAnswer     string                `json:"fullAnswer,omitempty"`
	Sources        []search.SourceRecord `json:"sources,omitempty"`
	Trace          []trace.Step          `json:"trace,omitempty"`
	Route          string                `json:"route,omitempty"`
	ConversationID string                `json:"conversationId,omitempty"`
	Error          string                `json:"error,omitempty"`
}

func Progress(step, message string) Event {
	return Event{Type: EventProgress, Step: step, Message: message}
}

func Chunk(delta string) Event {
	return Event{Type: EventStreamChunk, Chunk: delta}
}

// Reset is sent before chunks of a restarted generation.
func Reset(step, reason string) Event {
	return Event{Type: EventStreamReset, Step: step, Message: reason}
}

// Complete is the final event of a successful stream.
func Complete(conversationID, route, answer string, sources []search.SourceRecord, steps []trace.Step) Event {
	return Event{
		Type:           EventStreamComplete,
		FullAnswer:     answer,
		Sources:        sources,
		Trace:          steps,
		Route:          route,
		ConversationID: conversationID,
	}
}

func Failure(conversationID, msg string) Event {
	return Event{Type: EventError, ConversationID: conversationID, Error: msg}
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Type == EventStreamComplete || e.Type == EventError
}
