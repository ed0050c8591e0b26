package session

import (
	"time"
)

// EventType identifies a session lifecycle or state-change event
type EventType string

const (
	EventSessionStarted      EventType = "session_started"
	EventSessionEnded        EventType = "session_ended"
	EventTimelineAppended    EventType = "timeline_appended"
	EventTopicDetected       EventType = "topic_detected"
	EventSentimentUpdated    EventType = "sentiment_updated"
	EventIssueRecorded       EventType = "issue_recorded"
	EventSuggestionsReplaced EventType = "suggestions_replaced"
	EventLearningEmitted     EventType = "learning_emitted"
	EventTicketSynthesized   EventType = "ticket_synthesized"
)

// Event is a derived view of a session state change, published to sinks
// such as the dashboard websocket hub. Events carry copies of state; sinks
// can never mutate the session through them.
type Event struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"session_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventSink receives session events. Implementations must not block; slow
// consumers should buffer or drop internally.
type EventSink interface {
	Publish(event Event)
}

// NoopSink discards all events
type NoopSink struct{}

// Publish implements EventSink
func (NoopSink) Publish(Event) {}
