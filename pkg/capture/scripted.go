package capture

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"assist-server/pkg/errors"
)

// Step is one scripted sampler cycle
type Step struct {
	Signal Signal

	// Fail makes this step report analysis unavailable instead of a signal
	Fail bool

	// Delay simulates analysis latency before the result is returned
	Delay time.Duration
}

// Scripted is a deterministic capture source and analyzer that replays a
// fixed signal sequence. It stands in for the real platform adapter in
// tests and demos.
type Scripted struct {
	logger *logrus.Entry
	source string

	mu         sync.Mutex
	steps      []Step
	index      int
	loop       bool
	acquireErr error
	acquired   bool
	released   bool
	onEnded    func()
}

// NewScripted creates a scripted capture for the given source kind and script
func NewScripted(logger *logrus.Logger, source string, steps []Step) *Scripted {
	return &Scripted{
		logger: logger.WithField("component", "scripted_capture"),
		source: source,
		steps:  steps,
	}
}

// SetLoop makes the script wrap around instead of running dry
func (s *Scripted) SetLoop(loop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = loop
}

// FailAcquire forces the next Acquire call to fail with the given error
func (s *Scripted) FailAcquire(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireErr = err
}

// Acquire implements MediaSource
func (s *Scripted) Acquire(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCaptureUnavailable, "acquire canceled")
	}
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}

	s.acquired = true
	s.released = false
	handle := &Handle{
		ID:     uuid.NewString(),
		Source: s.source,
	}

	s.logger.WithFields(logrus.Fields{
		"handle_id": handle.ID,
		"source":    handle.Source,
	}).Debug("Scripted capture acquired")

	return handle, nil
}

// Release implements MediaSource. Safe to call repeatedly.
func (s *Scripted) Release(handle *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released || !s.acquired {
		return
	}
	s.released = true
	s.logger.WithField("handle_id", handle.ID).Debug("Scripted capture released")
}

// Released reports whether the source has been released
func (s *Scripted) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// OnEnded implements MediaSource
func (s *Scripted) OnEnded(handle *Handle, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// TriggerEnded simulates the platform terminating the source out-of-band,
// e.g. the user revoking the screen-share permission through the browser
func (s *Scripted) TriggerEnded() {
	s.mu.Lock()
	fn := s.onEnded
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Sample implements SignalAnalyzer by replaying the next scripted step
func (s *Scripted) Sample(ctx context.Context, handle *Handle) (Signal, error) {
	s.mu.Lock()
	if s.index >= len(s.steps) {
		if !s.loop || len(s.steps) == 0 {
			s.mu.Unlock()
			return Signal{}, errors.NewAnalysisUnavailable("script exhausted",
				map[string]interface{}{"handle_id": handle.ID})
		}
		s.index = 0
	}
	step := s.steps[s.index]
	s.index++
	s.mu.Unlock()

	if step.Delay > 0 {
		select {
		case <-ctx.Done():
			return Signal{}, errors.Wrap(errors.ErrAnalysisUnavailable, "sample canceled")
		case <-time.After(step.Delay):
		}
	}

	if step.Fail {
		return Signal{}, errors.NewAnalysisUnavailable("scripted analysis failure",
			map[string]interface{}{"handle_id": handle.ID})
	}

	sig := step.Signal
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}
	return sig, nil
}

// TranscriptStep builds a transcript script entry
func TranscriptStep(speaker, text string) Step {
	return Step{Signal: Signal{Kind: SignalTranscript, Speaker: speaker, Text: text}}
}

// FrameStep builds a frame-description script entry
func FrameStep(category, text string) Step {
	return Step{Signal: Signal{Kind: SignalFrame, Category: category, Text: text}}
}

// DemoCallScript returns a canned phone-call signal sequence for demos
func DemoCallScript() []Step {
	return []Step{
		TranscriptStep("agent", "Thanks for calling IT support, how can I help you today?"),
		TranscriptStep("customer", "I can't log in to the portal since this morning."),
		TranscriptStep("customer", "The password reset page keeps failing and I'm getting frustrated."),
		TranscriptStep("agent", "Let me check your account access on our side."),
		TranscriptStep("customer", "Okay, thanks, that would be great."),
	}
}

// DemoScreenShareScript returns a canned screen-share signal sequence for demos
func DemoScreenShareScript() []Step {
	return []Step{
		FrameStep("navigation", "User navigating to login page"),
		FrameStep("input", "User entering credentials"),
		FrameStep("error", "Error dialog detected: 'Connection timeout'"),
		FrameStep("error", "Browser console showing 503 errors"),
		FrameStep("navigation", "Opening application settings"),
		FrameStep("system", "System notification: 'Update required'"),
	}
}
