package ticket

import (
	"fmt"
	"time"
)

// Priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Fallbacks used when a session ended before any classification landed
const (
	DefaultTopic    = "General Inquiry"
	DefaultIssue    = "Issue details pending analysis"
	DefaultCause    = "Pending investigation"
	DefaultContact  = "Unknown Caller"
	DefaultAssignee = "Raju"
)

// TimelineEvent is one entry in a session's append-only activity timeline.
// Events are never mutated after append, only appended, and their
// timestamps are non-decreasing in arrival order.
type TimelineEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Text      string    `json:"text"`
}

// ActionPoint is a follow-up task attached to a synthesized ticket
type ActionPoint struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Completed    bool   `json:"completed"`
	IsNextAction bool   `json:"isNextAction,omitempty"`
}

// ActivityEntry is one row of the ticket's activity log
type ActivityEntry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Author    string                 `json:"author"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Record is the immutable structured output of a monitoring session. It is
// created exactly once, at session end, and must never be mutated after
// synthesis.
type Record struct {
	ID              string          `json:"id"`
	Contact         string          `json:"contact"`
	Source          string          `json:"source"`
	Duration        string          `json:"duration"`
	Topic           string          `json:"topic"`
	Sentiment       string          `json:"sentiment"`
	Priority        string          `json:"priority"`
	Summary         string          `json:"summary"`
	KeyIssues       []string        `json:"keyIssues"`
	PotentialCauses []string        `json:"potentialCauses"`
	ActionPoints    []ActionPoint   `json:"actionPoints"`
	Assignee        string          `json:"assignee"`
	Status          string          `json:"status"`
	Category        string          `json:"category"`
	TimeSpent       string          `json:"timeSpent"`
	ActivityLog     []ActivityEntry `json:"activityLog"`
}

// FormatDuration renders elapsed seconds as "Xm Ys"
func FormatDuration(seconds int) string {
	mins := seconds / 60
	secs := seconds % 60
	return fmt.Sprintf("%dm %ds", mins, secs)
}

// GenerateID builds an incident identifier from the synthesis time:
// the year plus a four-digit suffix derived from the unix-millisecond
// clock. Uniqueness per session is guaranteed by the controller's
// single-synthesis contract, not by this function.
func GenerateID(now time.Time) string {
	return fmt.Sprintf("INC-%d-%04d", now.Year(), now.UnixMilli()%10000)
}
