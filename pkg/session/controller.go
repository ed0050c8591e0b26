package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"assist-server/pkg/capture"
	"assist-server/pkg/errors"
	"assist-server/pkg/inference"
	"assist-server/pkg/insight"
	"assist-server/pkg/metrics"
	"assist-server/pkg/suggest"
	"assist-server/pkg/ticket"
)

// Status is the session lifecycle state. Transitions are monotonic:
// idle -> active -> ended, never backward.
type Status int

const (
	StatusIdle Status = iota
	StatusActive
	StatusEnded
)

// String returns the lowercase status label
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Config holds per-session tuning
type Config struct {
	// SampleInterval is the sampler tick period
	SampleInterval time.Duration

	// SuggestionCap bounds the suggestion list length
	SuggestionCap int

	// InsightEvery emits at most one learning every N processed ticks
	InsightEvery int

	// InsightMax caps the number of learnings per session
	InsightMax int

	// Contact overrides the synthesized ticket's contact field
	Contact string
}

// DefaultConfig returns the standard session tuning
func DefaultConfig() Config {
	return Config{
		SampleInterval: 5 * time.Second,
		SuggestionCap:  suggest.DefaultCap,
		InsightEvery:   3,
		InsightMax:     5,
	}
}

// Controller owns one monitoring session: its lifecycle state machine, the
// accumulated timeline, the deduplicated issue set, topic/sentiment state
// and the suggestion list. All mutation happens here; the sampler and
// inference engine only return values that the controller applies.
type Controller struct {
	logger    *logrus.Entry
	cfg       Config
	source    capture.MediaSource
	analyzer  capture.SignalAnalyzer
	engine    *inference.Engine
	suggester *suggest.Engine
	insights  *insight.Policy
	sink      EventSink

	mu          sync.Mutex
	id          string
	status      Status
	startTime   time.Time
	endTime     time.Time
	handle      *capture.Handle
	epoch       uint64
	sampler     *sampler
	ticks       int
	timeline    []ticket.TimelineEvent
	lastEventAt time.Time
	issues      []string
	issueSet    map[string]struct{}
	topic       string
	topicConf   float64
	sentiment   string
	suggestions []suggest.Suggestion
	learnings   []insight.Learning
	synthesized bool
	record      *ticket.Record

	nowFunc func() time.Time
}

// NewController creates an idle session controller over the given capture
// ports
func NewController(logger *logrus.Logger, cfg Config, source capture.MediaSource, analyzer capture.SignalAnalyzer) *Controller {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultConfig().SampleInterval
	}

	id := uuid.NewString()
	return &Controller{
		logger:    logger.WithField("component", "session_controller").WithField("session_id", id),
		cfg:       cfg,
		source:    source,
		analyzer:  analyzer,
		engine:    inference.NewEngine(logger),
		suggester: suggest.NewEngine(logger, cfg.SuggestionCap),
		insights:  insight.NewPolicy(logger, cfg.InsightEvery, cfg.InsightMax),
		sink:      NoopSink{},
		id:        id,
		status:    StatusIdle,
		issueSet:  make(map[string]struct{}),
		sentiment: inference.SentimentNeutral,
		nowFunc:   time.Now,
	}
}

// SetEventSink installs a sink for derived session events. Must be called
// before Start.
func (c *Controller) SetEventSink(sink EventSink) {
	if sink == nil {
		sink = NoopSink{}
	}
	c.sink = sink
}

// ID returns the session identifier
func (c *Controller) ID() string {
	return c.id
}

// Status returns the current lifecycle state
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start acquires the capture source and transitions idle -> active. On
// acquisition failure the session stays idle and the error carries
// errors.ErrCaptureUnavailable for the caller to surface.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusIdle {
		status := c.status
		c.mu.Unlock()
		return errors.NewInvalidTransition("start", status.String())
	}
	c.mu.Unlock()

	handle, err := c.source.Acquire(ctx)
	if err != nil {
		metrics.RecordCaptureFailure()
		c.logger.WithError(err).Warn("Capture acquisition failed, session stays idle")
		return errors.Wrap(err, "session start failed")
	}

	c.mu.Lock()
	now := c.nowFunc()
	c.status = StatusActive
	c.startTime = now
	c.handle = handle
	c.suggestions = c.suggester.Greeting()
	c.appendTimelineLocked(inference.CategorySystem, "Session started")

	epoch := c.epoch
	c.sampler = newSampler(c.logger, c.cfg.SampleInterval, c.analyzer, handle, epoch, c.applyFromSampler)
	c.sampler.start()
	c.mu.Unlock()

	// Out-of-band termination (e.g. permission revoked through the
	// platform) is treated exactly like an internally-initiated stop
	c.source.OnEnded(handle, func() {
		c.logger.Warn("Capture source ended out-of-band")
		metrics.RecordOutOfBandEnding()
		c.Stop()
	})

	metrics.RecordSessionStarted(handle.Source)
	c.logger.WithFields(logrus.Fields{
		"source":          handle.Source,
		"sample_interval": c.cfg.SampleInterval,
	}).Info("Session started")

	c.publish(EventSessionStarted, map[string]interface{}{
		"source": handle.Source,
	})

	return nil
}

// Stop ends an active session: cancels the sampler timer synchronously,
// invalidates any in-flight analysis via the session epoch, releases the
// capture handle and transitions to ended. Idempotent; calling Stop on an
// ended (or never-started) session is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.status != StatusActive {
		c.mu.Unlock()
		return
	}

	c.status = StatusEnded
	c.endTime = c.nowFunc()
	c.epoch++
	smp := c.sampler
	c.sampler = nil
	handle := c.handle
	c.appendTimelineLocked(inference.CategorySystem, "Session ended")
	duration := c.endTime.Sub(c.startTime)
	c.mu.Unlock()

	if smp != nil {
		smp.stop()
	}
	if handle != nil {
		// Release always runs, even when cancellation raced with an
		// in-flight cycle; the port guarantees idempotency
		c.source.Release(handle)
		metrics.RecordSessionEnded(handle.Source, duration)
	}

	c.logger.WithField("duration", duration.Round(time.Second)).Info("Session ended")
	c.publish(EventSessionEnded, map[string]interface{}{
		"duration_seconds": int(duration.Seconds()),
	})
}

// RecordSignal feeds one sampled signal through the inference engine and
// applies the classification. Valid only while the session is active;
// calling it in any other state is a contract violation.
func (c *Controller) RecordSignal(sig capture.Signal) error {
	c.mu.Lock()
	if c.status != StatusActive {
		status := c.status
		c.mu.Unlock()
		return errors.NewInvalidTransition("recordSignal", status.String())
	}
	epoch := c.epoch
	c.mu.Unlock()

	c.applyFromSampler(epoch, sig)
	return nil
}

// applyFromSampler applies one tick's result. A result whose epoch no
// longer matches the session epoch arrived after cancellation and is
// discarded without touching state.
func (c *Controller) applyFromSampler(epoch uint64, sig capture.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusActive || c.epoch != epoch {
		c.logger.Debug("Discarding stale sampler result")
		metrics.RecordTickSkipped(metrics.SkipReasonStaleResult)
		return
	}

	c.ticks++
	cls := c.engine.Classify(sig)

	// Issue set grows monotonically, deduplicated by exact text
	if cls.Issue != "" {
		if _, seen := c.issueSet[cls.Issue]; !seen {
			c.issueSet[cls.Issue] = struct{}{}
			c.issues = append(c.issues, cls.Issue)
			metrics.RecordIssueAdded()
			c.publish(EventIssueRecorded, map[string]interface{}{"issue": cls.Issue})
		}
	}

	// Topic is sticky: it never reverts, and is only overwritten by a
	// match of at least equal confidence. A transition replaces the
	// whole suggestion list.
	if cls.Topic != "" && cls.TopicConfidence >= c.topicConf && cls.Topic != c.topic {
		c.topic = cls.Topic
		c.topicConf = cls.TopicConfidence
		c.suggestions = c.suggester.ForTopic(cls.Topic)

		metrics.RecordTopicDetected(cls.Topic)
		metrics.RecordSuggestionsReplaced()
		c.logger.WithField("topic", cls.Topic).Info("Topic detected")
		c.publish(EventTopicDetected, map[string]interface{}{"topic": cls.Topic})
		c.publish(EventSuggestionsReplaced, map[string]interface{}{
			"suggestions": c.suggestionsCopyLocked(),
		})
	}

	// Sentiment: last matching rule wins across the session
	if cls.Sentiment != "" && cls.Sentiment != c.sentiment {
		c.sentiment = cls.Sentiment
		metrics.RecordSentimentUpdate(cls.Sentiment)
		c.publish(EventSentimentUpdated, map[string]interface{}{"sentiment": cls.Sentiment})
	}

	if learning, ok := c.insights.Observe(c.ticks); ok {
		c.learnings = append(c.learnings, learning)
		metrics.RecordLearningEmitted()
		c.publish(EventLearningEmitted, map[string]interface{}{
			"learning": learning,
		})
	}

	ev := c.appendTimelineLocked(cls.Category, sig.Text)
	metrics.RecordTickProcessed()
	c.publish(EventTimelineAppended, map[string]interface{}{
		"event_id": ev.ID,
		"category": ev.Category,
		"text":     ev.Text,
		"speaker":  sig.Speaker,
	})
}

// Complete forces Stop and folds the final session state into a ticket
// record. At most one synthesis per session; a second call fails with
// errors.ErrSessionAlreadySynthesized.
func (c *Controller) Complete() (*ticket.Record, error) {
	c.mu.Lock()
	if c.synthesized {
		c.mu.Unlock()
		return nil, errors.Wrap(errors.ErrSessionAlreadySynthesized, "complete called twice",
			map[string]interface{}{"session_id": c.id})
	}
	if c.status == StatusIdle {
		c.mu.Unlock()
		return nil, errors.NewInvalidTransition("complete", StatusIdle.String())
	}
	c.mu.Unlock()

	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.synthesized {
		return nil, errors.Wrap(errors.ErrSessionAlreadySynthesized, "complete called twice",
			map[string]interface{}{"session_id": c.id})
	}

	source := capture.SourcePhone
	if c.handle != nil {
		source = c.handle.Source
	}

	timeline := make([]ticket.TimelineEvent, len(c.timeline))
	copy(timeline, c.timeline)
	issues := make([]string, len(c.issues))
	copy(issues, c.issues)
	learnings := make([]insight.Learning, len(c.learnings))
	copy(learnings, c.learnings)

	rec := ticket.Synthesize(ticket.Input{
		SessionID: c.id,
		Source:    source,
		Contact:   c.cfg.Contact,
		StartTime: c.startTime,
		EndTime:   c.endTime,
		Topic:     c.topic,
		Sentiment: c.sentiment,
		Issues:    issues,
		Learnings: learnings,
		Timeline:  timeline,
	}, c.nowFunc())

	c.synthesized = true
	c.record = rec

	metrics.RecordTicketSynthesized(rec.Priority)
	c.logger.WithFields(logrus.Fields{
		"ticket_id": rec.ID,
		"topic":     rec.Topic,
		"priority":  rec.Priority,
	}).Info("Ticket synthesized")
	c.publish(EventTicketSynthesized, map[string]interface{}{
		"ticket_id": rec.ID,
		"priority":  rec.Priority,
	})

	return rec, nil
}

// appendTimelineLocked appends one event to the timeline. Timestamps are
// stamped at arrival and clamped to the previous event so the sequence
// stays non-decreasing. Caller holds c.mu.
func (c *Controller) appendTimelineLocked(category, text string) ticket.TimelineEvent {
	ts := c.nowFunc()
	if ts.Before(c.lastEventAt) {
		ts = c.lastEventAt
	}
	c.lastEventAt = ts

	ev := ticket.TimelineEvent{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Category:  category,
		Text:      text,
	}
	c.timeline = append(c.timeline, ev)
	return ev
}

func (c *Controller) suggestionsCopyLocked() []suggest.Suggestion {
	out := make([]suggest.Suggestion, len(c.suggestions))
	copy(out, c.suggestions)
	return out
}

func (c *Controller) publish(eventType EventType, data map[string]interface{}) {
	c.sink.Publish(Event{
		Type:      eventType,
		SessionID: c.id,
		Timestamp: c.nowFunc(),
		Data:      data,
	})
}

// Snapshot is a copy of the session's derived state for dashboards
type Snapshot struct {
	ID             string                 `json:"id"`
	Status         string                 `json:"status"`
	StartTime      time.Time              `json:"start_time"`
	ElapsedSeconds int                    `json:"elapsed_seconds"`
	Ticks          int                    `json:"ticks"`
	Topic          string                 `json:"topic"`
	Sentiment      string                 `json:"sentiment"`
	Issues         []string               `json:"issues"`
	Suggestions    []suggest.Suggestion   `json:"suggestions"`
	Learnings      []insight.Learning     `json:"learnings"`
	Timeline       []ticket.TimelineEvent `json:"timeline"`
}

// Snapshot returns a copy of the current session state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := 0
	switch c.status {
	case StatusActive:
		elapsed = int(c.nowFunc().Sub(c.startTime).Seconds())
	case StatusEnded:
		elapsed = int(c.endTime.Sub(c.startTime).Seconds())
	}

	issues := make([]string, len(c.issues))
	copy(issues, c.issues)
	learnings := make([]insight.Learning, len(c.learnings))
	copy(learnings, c.learnings)
	timeline := make([]ticket.TimelineEvent, len(c.timeline))
	copy(timeline, c.timeline)

	return Snapshot{
		ID:             c.id,
		Status:         c.status.String(),
		StartTime:      c.startTime,
		ElapsedSeconds: elapsed,
		Ticks:          c.ticks,
		Topic:          c.topic,
		Sentiment:      c.sentiment,
		Issues:         issues,
		Suggestions:    c.suggestionsCopyLocked(),
		Learnings:      learnings,
		Timeline:       timeline,
	}
}
