package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assist-server/pkg/capture"
	"assist-server/pkg/errors"
	"assist-server/pkg/inference"
	"assist-server/pkg/ticket"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// fakeClock hands out strictly increasing timestamps unless explicitly
// rewound, so timeline assertions are deterministic
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Rewind(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(-d)
}

// recordingSink captures published events for assertions
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) ofType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestController(t *testing.T, steps []capture.Step) (*Controller, *capture.Scripted, *fakeClock) {
	t.Helper()

	logger := testLogger()
	scripted := capture.NewScripted(logger, capture.SourcePhone, steps)

	cfg := DefaultConfig()
	cfg.SampleInterval = time.Hour // sampler stays quiet; tests drive RecordSignal

	ctrl := NewController(logger, cfg, scripted, scripted)
	clock := newFakeClock()
	ctrl.nowFunc = clock.Now
	return ctrl, scripted, clock
}

func transcript(speaker, text string) capture.Signal {
	return capture.Signal{Kind: capture.SignalTranscript, Speaker: speaker, Text: text}
}

func TestControllerLifecycle(t *testing.T) {
	ctrl, scripted, _ := newTestController(t, nil)

	assert.Equal(t, StatusIdle, ctrl.Status())
	require.NoError(t, ctrl.Start(context.Background()))
	assert.Equal(t, StatusActive, ctrl.Status())

	ctrl.Stop()
	assert.Equal(t, StatusEnded, ctrl.Status())
	assert.True(t, scripted.Released())

	// Second stop is a no-op
	snapshotBefore := ctrl.Snapshot()
	ctrl.Stop()
	snapshotAfter := ctrl.Snapshot()
	assert.Equal(t, snapshotBefore.Timeline, snapshotAfter.Timeline)
	assert.Equal(t, snapshotBefore.ElapsedSeconds, snapshotAfter.ElapsedSeconds)
}

func TestStartFailsWhenCaptureUnavailable(t *testing.T) {
	ctrl, scripted, _ := newTestController(t, nil)
	scripted.FailAcquire(errors.NewCaptureUnavailable("microphone permission denied"))

	err := ctrl.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCaptureUnavailable))
	assert.Equal(t, StatusIdle, ctrl.Status())

	// The session stays usable: clearing the fault lets Start succeed
	scripted.FailAcquire(nil)
	require.NoError(t, ctrl.Start(context.Background()))
	ctrl.Stop()
}

func TestStartTwiceFails(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	err := ctrl.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestRecordSignalOutsideActive(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)

	err := ctrl.RecordSignal(transcript("Customer", "hello"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	require.NoError(t, ctrl.Start(context.Background()))
	ctrl.Stop()

	err = ctrl.RecordSignal(transcript("Customer", "hello"))
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestTimelineLengthAndMarkers(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "hello there")))
	require.NoError(t, ctrl.RecordSignal(transcript("Agent", "how can I help")))
	ctrl.Stop()

	snap := ctrl.Snapshot()
	require.Len(t, snap.Timeline, 4)
	assert.Equal(t, "Session started", snap.Timeline[0].Text)
	assert.Equal(t, inference.CategorySystem, snap.Timeline[0].Category)
	assert.Equal(t, "hello there", snap.Timeline[1].Text)
	assert.Equal(t, "Session ended", snap.Timeline[3].Text)
}

func TestTimelineTimestampsNonDecreasing(t *testing.T) {
	ctrl, _, clock := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "first")))
	// A clock that jumps backward must not produce a regressing timeline
	clock.Rewind(time.Minute)
	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "second")))
	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "third")))
	ctrl.Stop()

	snap := ctrl.Snapshot()
	for i := 1; i < len(snap.Timeline); i++ {
		prev := snap.Timeline[i-1].Timestamp
		cur := snap.Timeline[i].Timestamp
		assert.False(t, cur.Before(prev), "event %d regressed: %v < %v", i, cur, prev)
	}
}

func TestIssueDeduplication(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "I can't login to my account")))
	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "the password reset failed")))
	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "still no login access")))
	ctrl.Stop()

	snap := ctrl.Snapshot()
	assert.Equal(t, []string{"User cannot login"}, snap.Issues)
}

func TestTopicDetectionReplacesSuggestions(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	sink := &recordingSink{}
	ctrl.SetEventSink(sink)
	require.NoError(t, ctrl.Start(context.Background()))

	// The greeting set is seeded before any signal
	snap := ctrl.Snapshot()
	require.NotEmpty(t, snap.Suggestions)
	greetingID := snap.Suggestions[0].ID

	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "I can't login to my account")))

	snap = ctrl.Snapshot()
	assert.Equal(t, "Account Access Issue", snap.Topic)
	require.NotEmpty(t, snap.Suggestions)
	assert.NotEqual(t, greetingID, snap.Suggestions[0].ID)
	assert.LessOrEqual(t, len(snap.Suggestions), ctrl.cfg.SuggestionCap)

	assert.Len(t, sink.ofType(EventTopicDetected), 1)
	assert.Len(t, sink.ofType(EventSuggestionsReplaced), 1)
	ctrl.Stop()
}

func TestTopicDoesNotFlapOnRepeatedMatch(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	sink := &recordingSink{}
	ctrl.SetEventSink(sink)
	require.NoError(t, ctrl.Start(context.Background()))

	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "password problems")))
	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "login still broken")))
	ctrl.Stop()

	// Same topic twice: one detection event, one replacement
	assert.Len(t, sink.ofType(EventTopicDetected), 1)
	assert.Len(t, sink.ofType(EventSuggestionsReplaced), 1)
}

func TestSentimentLastMatchWins(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	assert.Equal(t, inference.SentimentNeutral, ctrl.Snapshot().Sentiment)

	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "this is so frustrating")))
	assert.Equal(t, inference.SentimentNegative, ctrl.Snapshot().Sentiment)

	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "thanks, it is working now")))
	assert.Equal(t, inference.SentimentPositive, ctrl.Snapshot().Sentiment)
	ctrl.Stop()
}

func TestLearningsEmittedOnSchedule(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	for i := 0; i < 7; i++ {
		require.NoError(t, ctrl.RecordSignal(transcript("Customer", "just chatting")))
	}
	ctrl.Stop()

	// Ticks 3 and 6 emit with the default every-3 schedule
	snap := ctrl.Snapshot()
	assert.Len(t, snap.Learnings, 2)
}

func TestCompleteSynthesizesOnce(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "I can't login to my account")))
	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "the password reset failed")))

	rec, err := ctrl.Complete()
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, StatusEnded, ctrl.Status())
	assert.Equal(t, "Account Access Issue", rec.Topic)
	assert.Equal(t, []string{"User cannot login"}, rec.KeyIssues)
	assert.Equal(t, ticket.PriorityMedium, rec.Priority)
	assert.Regexp(t, `^INC-\d{4}-\d{4}$`, rec.ID)

	_, err = ctrl.Complete()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSessionAlreadySynthesized))
}

func TestCompleteStopsActiveSession(t *testing.T) {
	ctrl, scripted, _ := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	rec, err := ctrl.Complete()
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, ctrl.Status())
	assert.True(t, scripted.Released())

	// No topic ever detected: synthesis falls back to defaults
	assert.Equal(t, ticket.DefaultTopic, rec.Topic)
	assert.Equal(t, []string{ticket.DefaultIssue}, rec.KeyIssues)
}

func TestCompleteFromIdleFails(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)

	_, err := ctrl.Complete()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestNegativeSentimentRaisesPriority(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "the printer is broken and I am angry")))

	rec, err := ctrl.Complete()
	require.NoError(t, err)
	assert.Equal(t, inference.SentimentNegative, rec.Sentiment)
	assert.Equal(t, ticket.PriorityHigh, rec.Priority)
	assert.Equal(t, "Hardware Malfunction", rec.Topic)
}

func TestStaleResultDiscardedAfterStop(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	ctrl.mu.Lock()
	epoch := ctrl.epoch
	ctrl.mu.Unlock()

	ctrl.Stop()
	before := ctrl.Snapshot()

	// A result from a cycle that was in flight when Stop ran carries the
	// old epoch and must not mutate the ended session
	ctrl.applyFromSampler(epoch, transcript("Customer", "I can't login to my account"))

	after := ctrl.Snapshot()
	assert.Equal(t, before.Timeline, after.Timeline)
	assert.Empty(t, after.Issues)
	assert.Empty(t, after.Topic)
}

func TestOutOfBandEndingStopsSession(t *testing.T) {
	ctrl, scripted, _ := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	scripted.TriggerEnded()

	assert.Equal(t, StatusEnded, ctrl.Status())
	assert.True(t, scripted.Released())

	// The session still synthesizes normally after an out-of-band end
	rec, err := ctrl.Complete()
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestSnapshotIsACopy(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	require.NoError(t, ctrl.Start(context.Background()))
	require.NoError(t, ctrl.RecordSignal(transcript("Customer", "I can't login to my account")))

	snap := ctrl.Snapshot()
	snap.Issues[0] = "mutated"
	snap.Timeline[0].Text = "mutated"

	fresh := ctrl.Snapshot()
	assert.Equal(t, "User cannot login", fresh.Issues[0])
	assert.Equal(t, "Session started", fresh.Timeline[0].Text)
	ctrl.Stop()
}
