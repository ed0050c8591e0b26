package capture

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assist-server/pkg/errors"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestScriptedImplementsPorts(t *testing.T) {
	var _ MediaSource = (*Scripted)(nil)
	var _ SignalAnalyzer = (*Scripted)(nil)
}

func TestScriptedAcquireRelease(t *testing.T) {
	cap := NewScripted(newTestLogger(), SourcePhone, DemoCallScript())

	handle, err := cap.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, SourcePhone, handle.Source)
	assert.NotEmpty(t, handle.ID)

	cap.Release(handle)
	assert.True(t, cap.Released())

	// Release is idempotent
	cap.Release(handle)
	assert.True(t, cap.Released())
}

func TestScriptedAcquireFailure(t *testing.T) {
	cap := NewScripted(newTestLogger(), SourceScreenShare, nil)
	cap.FailAcquire(errors.NewCaptureUnavailable("permission denied"))

	handle, err := cap.Acquire(context.Background())
	assert.Nil(t, handle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCaptureUnavailable))
}

func TestScriptedReplaysInOrder(t *testing.T) {
	steps := []Step{
		TranscriptStep("agent", "hello"),
		TranscriptStep("customer", "hi"),
	}
	cap := NewScripted(newTestLogger(), SourcePhone, steps)

	handle, err := cap.Acquire(context.Background())
	require.NoError(t, err)

	first, err := cap.Sample(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, "hello", first.Text)
	assert.Equal(t, "agent", first.Speaker)
	assert.Equal(t, SignalTranscript, first.Kind)
	assert.False(t, first.Timestamp.IsZero())

	second, err := cap.Sample(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, "hi", second.Text)

	// Script exhausted without loop: analysis unavailable
	_, err = cap.Sample(context.Background(), handle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAnalysisUnavailable))
}

func TestScriptedLoopWrapsAround(t *testing.T) {
	cap := NewScripted(newTestLogger(), SourcePhone, []Step{TranscriptStep("agent", "again")})
	cap.SetLoop(true)

	handle, err := cap.Acquire(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		sig, err := cap.Sample(context.Background(), handle)
		require.NoError(t, err)
		assert.Equal(t, "again", sig.Text)
	}
}

func TestScriptedFailStepSkipsTick(t *testing.T) {
	steps := []Step{
		{Fail: true},
		TranscriptStep("customer", "still here"),
	}
	cap := NewScripted(newTestLogger(), SourcePhone, steps)

	handle, err := cap.Acquire(context.Background())
	require.NoError(t, err)

	_, err = cap.Sample(context.Background(), handle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAnalysisUnavailable))

	sig, err := cap.Sample(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, "still here", sig.Text)
}

func TestScriptedSampleCancellation(t *testing.T) {
	steps := []Step{{Signal: Signal{Kind: SignalTranscript, Text: "slow"}, Delay: 5 * time.Second}}
	cap := NewScripted(newTestLogger(), SourcePhone, steps)

	handle, err := cap.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := cap.Sample(ctx, handle)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, errors.ErrAnalysisUnavailable))
	case <-time.After(2 * time.Second):
		t.Fatal("Sample did not exit after context cancellation")
	}
}

func TestScriptedOnEnded(t *testing.T) {
	cap := NewScripted(newTestLogger(), SourceScreenShare, nil)

	handle, err := cap.Acquire(context.Background())
	require.NoError(t, err)

	var fired bool
	cap.OnEnded(handle, func() { fired = true })
	cap.TriggerEnded()

	assert.True(t, fired)
}
