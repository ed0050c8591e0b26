package capture

import (
	"context"
	"time"
)

// Source kinds reported by media acquisition handles
const (
	SourcePhone       = "phone"
	SourceScreenShare = "screen-share"
)

// SignalKind identifies the shape of a sampled signal
type SignalKind string

const (
	// SignalTranscript is a speaker-tagged transcript fragment
	SignalTranscript SignalKind = "transcript"

	// SignalFrame is a free-text description of a captured frame
	SignalFrame SignalKind = "frame"
)

// Signal is one sampled unit of raw input. It is ephemeral: consumed by the
// inference engine as soon as it is produced and never stored raw.
type Signal struct {
	Kind SignalKind `json:"kind"`

	// Speaker tags transcript fragments ("agent" or "customer"). Speaker
	// attribution is supplied by the capture platform, never inferred here.
	Speaker string `json:"speaker,omitempty"`

	Text string `json:"text"`

	// Category is an activity hint attached by the analyzer to frame
	// signals (navigation, error, input, system). Empty for transcripts.
	Category string `json:"category,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Handle represents an acquired live media source
type Handle struct {
	ID     string
	Source string
}

// MediaSource abstracts acquisition of a live media/signal source
// (microphone stream, display capture). Implementations wrap the actual
// platform capability; acquisition failures must surface as
// errors.ErrCaptureUnavailable.
type MediaSource interface {
	// Acquire requests a live capture handle
	Acquire(ctx context.Context) (*Handle, error)

	// Release releases the handle and its underlying tracks. Idempotent.
	Release(handle *Handle)

	// OnEnded registers a callback fired when the source terminates
	// out-of-band (e.g. the user revokes permission via the platform)
	OnEnded(handle *Handle, fn func())
}

// SignalAnalyzer converts raw captured media into signals. The actual
// transcription or vision inference is an external capability behind this
// interface; transient failures surface as errors.ErrAnalysisUnavailable
// and are treated as skipped ticks by the caller.
type SignalAnalyzer interface {
	Sample(ctx context.Context, handle *Handle) (Signal, error)
}
