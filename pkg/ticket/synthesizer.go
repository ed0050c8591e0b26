package ticket

import (
	"fmt"
	"strings"
	"time"

	"assist-server/pkg/capture"
	"assist-server/pkg/insight"
)

// Input is the final session state folded into a Record. The synthesizer
// reads it and never mutates it.
type Input struct {
	SessionID string
	Source    string
	Contact   string
	StartTime time.Time
	EndTime   time.Time

	Topic     string
	Sentiment string
	Issues    []string
	Learnings []insight.Learning
	Timeline  []TimelineEvent
}

// Synthesize folds final session state into an immutable ticket record.
// Pure: the only inputs are the session state and the synthesis clock, and
// every output field is always populated, falling back to documented
// defaults when the session produced no classification.
func Synthesize(in Input, now time.Time) *Record {
	elapsed := int(in.EndTime.Sub(in.StartTime).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	duration := FormatDuration(elapsed)

	topic := in.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	sentiment := in.Sentiment
	if sentiment == "" {
		sentiment = "neutral"
	}

	priority := PriorityMedium
	if sentiment == "negative" {
		priority = PriorityHigh
	}

	issues := make([]string, len(in.Issues))
	copy(issues, in.Issues)
	if len(issues) == 0 {
		issues = []string{DefaultIssue}
	}

	return &Record{
		ID:              GenerateID(now),
		Contact:         contactFor(in),
		Source:          sourceFor(in),
		Duration:        duration,
		Topic:           topic,
		Sentiment:       sentiment,
		Priority:        priority,
		Summary:         summaryFor(in, topic, sentiment, issues),
		KeyIssues:       issues,
		PotentialCauses: causesFrom(in.Learnings),
		ActionPoints:    actionPointsFrom(in.Learnings),
		Assignee:        assigneeFor(in),
		Status:          "open",
		Category:        categoryFor(in),
		TimeSpent:       duration,
		ActivityLog:     activityLogFor(in),
	}
}

func sourceFor(in Input) string {
	if in.Source == "" {
		return capture.SourcePhone
	}
	return in.Source
}

func contactFor(in Input) string {
	if in.Contact != "" {
		return in.Contact
	}
	if sourceFor(in) == capture.SourceScreenShare {
		return "Screen Share Session User"
	}
	return DefaultContact
}

func assigneeFor(in Input) string {
	if sourceFor(in) == capture.SourceScreenShare {
		return "Tier 1 Support"
	}
	return DefaultAssignee
}

func categoryFor(in Input) string {
	if sourceFor(in) == capture.SourceScreenShare {
		return "software"
	}
	return "other"
}

func summaryFor(in Input, topic, sentiment string, issues []string) string {
	if sourceFor(in) == capture.SourceScreenShare {
		return fmt.Sprintf("Key issues identified: %s. See session activity log for details.",
			strings.Join(issues, ", "))
	}
	return fmt.Sprintf("Call regarding %s. Transcript analysis indicates %s sentiment.",
		topic, sentiment)
}

// causesFrom maps issue and solution learnings into potential causes,
// falling back to the pending-investigation default
func causesFrom(learnings []insight.Learning) []string {
	var causes []string
	for _, l := range learnings {
		if l.Kind == insight.KindIssue || l.Kind == insight.KindSolution {
			causes = append(causes, l.Text)
		}
	}
	if len(causes) == 0 {
		causes = []string{DefaultCause}
	}
	return causes
}

// actionPointsFrom returns the two standing follow-ups plus one entry per
// process learning emitted during the session
func actionPointsFrom(learnings []insight.Learning) []ActionPoint {
	points := []ActionPoint{
		{ID: "1", Text: "Review call transcript", Completed: false},
		{ID: "2", Text: "Follow up with user", Completed: false},
	}

	for _, l := range learnings {
		if l.Kind == insight.KindProcess {
			points = append(points, ActionPoint{
				ID:   fmt.Sprintf("learning-%s", l.ID),
				Text: l.Text,
			})
		}
	}

	return points
}

// activityLogFor wraps the session timeline with synthetic start and end
// markers, mirroring how the dashboard renders a session's history
func activityLogFor(in Input) []ActivityEntry {
	label := "Call"
	if sourceFor(in) == capture.SourceScreenShare {
		label = "Screen share"
	}

	log := make([]ActivityEntry, 0, len(in.Timeline)+2)
	log = append(log, ActivityEntry{
		ID:        "act_start",
		Timestamp: in.StartTime,
		Type:      "log",
		Author:    "System",
		Content:   fmt.Sprintf("%s session started.", label),
	})

	for _, ev := range in.Timeline {
		entryType := "note"
		if ev.Category == "error" || ev.Category == "system" {
			entryType = "log"
		}
		author := "User"
		if ev.Category == "system" {
			author = "System"
		}

		log = append(log, ActivityEntry{
			ID:        fmt.Sprintf("act_%s", ev.ID),
			Timestamp: ev.Timestamp,
			Type:      entryType,
			Author:    author,
			Content:   ev.Text,
		})
	}

	log = append(log, ActivityEntry{
		ID:        "act_end",
		Timestamp: in.EndTime,
		Type:      "log",
		Author:    "System",
		Content:   fmt.Sprintf("%s session ended.", label),
		Metadata: map[string]interface{}{
			"actionsDetected": len(in.Timeline),
		},
	})

	return log
}
