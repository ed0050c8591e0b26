package suggest

import (
	"github.com/sirupsen/logrus"
)

// Suggestion kinds
const (
	KindQuestion = "question"
	KindAction   = "action"
	KindInfo     = "info"
)

// DefaultCap bounds the suggestion list length
const DefaultCap = 2

// Suggestion is one next-best-action surfaced to the agent
type Suggestion struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Engine produces canned suggestion sets keyed by detected topic. It holds
// no mutable state: recomputing the list for a topic is idempotent, and the
// session controller replaces its whole suggestion list on every topic
// transition.
type Engine struct {
	logger *logrus.Entry
	cap    int
	byTop  map[string][]Suggestion
}

// NewEngine creates a suggestion engine with the given list cap. A cap of
// zero or less falls back to DefaultCap.
func NewEngine(logger *logrus.Logger, cap int) *Engine {
	if cap <= 0 {
		cap = DefaultCap
	}

	return &Engine{
		logger: logger.WithField("component", "suggestion_engine"),
		cap:    cap,
		byTop: map[string][]Suggestion{
			"Account Access Issue": {
				{ID: "account-access-q1", Kind: KindQuestion, Text: "Have you tried resetting your password?"},
				{ID: "account-access-a1", Kind: KindAction, Text: "Check account status in AD"},
			},
			"Network Connectivity": {
				{ID: "network-q1", Kind: KindQuestion, Text: "Are you on VPN or office network?"},
				{ID: "network-a1", Kind: KindAction, Text: "Run speed test"},
			},
			"Hardware Malfunction": {
				{ID: "hardware-q1", Kind: KindQuestion, Text: "What is the printer model number?"},
				{ID: "hardware-a1", Kind: KindAction, Text: "Check printer queue"},
			},
			"Authentication & Access Issues": {
				{ID: "auth-q1", Kind: KindQuestion, Text: "Have you tried resetting your password?"},
				{ID: "auth-a1", Kind: KindAction, Text: "Check account status in AD"},
			},
			"System Errors & Connectivity": {
				{ID: "syserr-a1", Kind: KindAction, Text: "Capture the browser console output"},
				{ID: "syserr-i1", Kind: KindInfo, Text: "Check service status page for outages"},
			},
		},
	}
}

// Greeting returns the session-start suggestion set shown before any topic
// has been detected
func (e *Engine) Greeting() []Suggestion {
	return e.bounded([]Suggestion{
		{ID: "greeting-q1", Kind: KindQuestion, Text: "How can I help you today?"},
		{ID: "greeting-i1", Kind: KindInfo, Text: "Verify caller identity"},
	})
}

// ForTopic returns the canned suggestion set for a topic, or an empty list
// when the topic is unknown. Pure and side-effect free.
func (e *Engine) ForTopic(topic string) []Suggestion {
	if topic == "" {
		return nil
	}

	set, ok := e.byTop[topic]
	if !ok {
		return nil
	}

	return e.bounded(set)
}

// Cap returns the configured suggestion list bound
func (e *Engine) Cap() int {
	return e.cap
}

func (e *Engine) bounded(set []Suggestion) []Suggestion {
	if len(set) > e.cap {
		set = set[:e.cap]
	}

	// Copy so callers can never mutate the canned tables
	out := make([]Suggestion, len(set))
	copy(out, set)
	return out
}
