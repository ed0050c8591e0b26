package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsStarted  *prometheus.CounterVec
	SessionDuration  *prometheus.HistogramVec
	CaptureFailures  prometheus.Counter
	OutOfBandEndings prometheus.Counter

	// Sampler metrics
	TicksProcessed prometheus.Counter
	TicksSkipped   *prometheus.CounterVec

	// Classification metrics
	TopicsDetected      *prometheus.CounterVec
	SentimentUpdates    *prometheus.CounterVec
	IssuesRecorded      prometheus.Counter
	SuggestionsReplaced prometheus.Counter
	LearningsEmitted    prometheus.Counter

	// Synthesis metrics
	TicketsSynthesized *prometheus.CounterVec
)

// Tick skip reasons
const (
	SkipReasonOverlap     = "overlap"
	SkipReasonAnalysis    = "analysis_unavailable"
	SkipReasonStaleResult = "stale_result"
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assist_sessions_active",
			Help: "Number of monitoring sessions currently active",
		})

		SessionsStarted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assist_sessions_started_total",
				Help: "Total number of monitoring sessions started",
			},
			[]string{"source"},
		)

		SessionDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assist_session_duration_seconds",
				Help:    "Duration of ended monitoring sessions",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"source"},
		)

		CaptureFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assist_capture_failures_total",
			Help: "Total number of failed capture acquisitions",
		})

		OutOfBandEndings = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assist_out_of_band_endings_total",
			Help: "Total number of sessions ended by the platform rather than the controller",
		})

		TicksProcessed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assist_sampler_ticks_processed_total",
			Help: "Total number of sampler ticks that produced a timeline event",
		})

		TicksSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assist_sampler_ticks_skipped_total",
				Help: "Total number of sampler ticks skipped, by reason",
			},
			[]string{"reason"},
		)

		TopicsDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assist_topics_detected_total",
				Help: "Total number of topic detections, by topic",
			},
			[]string{"topic"},
		)

		SentimentUpdates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assist_sentiment_updates_total",
				Help: "Total number of sentiment state updates, by label",
			},
			[]string{"label"},
		)

		IssuesRecorded = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assist_issues_recorded_total",
			Help: "Total number of unique issues added to issue sets",
		})

		SuggestionsReplaced = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assist_suggestions_replaced_total",
			Help: "Total number of suggestion list replacements",
		})

		LearningsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assist_learnings_emitted_total",
			Help: "Total number of session learnings emitted",
		})

		TicketsSynthesized = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assist_tickets_synthesized_total",
				Help: "Total number of tickets synthesized, by priority",
			},
			[]string{"priority"},
		)

		registry.MustRegister(
			SessionsActive,
			SessionsStarted,
			SessionDuration,
			CaptureFailures,
			OutOfBandEndings,
			TicksProcessed,
			TicksSkipped,
			TopicsDetected,
			SentimentUpdates,
			IssuesRecorded,
			SuggestionsReplaced,
			LearningsEmitted,
			TicketsSynthesized,
		)

		logger.Info("Metrics registry initialized")
	})
}

// Handler returns the HTTP handler serving the metrics endpoint
func Handler() http.Handler {
	if registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// The helpers below are nil-safe so library consumers that never call Init
// pay nothing for instrumentation.

// RecordSessionStarted tracks a session transitioning to active
func RecordSessionStarted(source string) {
	if SessionsStarted == nil {
		return
	}
	SessionsStarted.WithLabelValues(source).Inc()
	SessionsActive.Inc()
}

// RecordSessionEnded tracks a session transitioning to ended
func RecordSessionEnded(source string, duration time.Duration) {
	if SessionDuration == nil {
		return
	}
	SessionsActive.Dec()
	SessionDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCaptureFailure tracks a failed acquisition
func RecordCaptureFailure() {
	if CaptureFailures == nil {
		return
	}
	CaptureFailures.Inc()
}

// RecordOutOfBandEnding tracks a platform-initiated session end
func RecordOutOfBandEnding() {
	if OutOfBandEndings == nil {
		return
	}
	OutOfBandEndings.Inc()
}

// RecordTickProcessed tracks a sampler tick whose result was applied
func RecordTickProcessed() {
	if TicksProcessed == nil {
		return
	}
	TicksProcessed.Inc()
}

// RecordTickSkipped tracks a dropped or failed sampler tick
func RecordTickSkipped(reason string) {
	if TicksSkipped == nil {
		return
	}
	TicksSkipped.WithLabelValues(reason).Inc()
}

// RecordTopicDetected tracks a topic state update
func RecordTopicDetected(topic string) {
	if TopicsDetected == nil {
		return
	}
	TopicsDetected.WithLabelValues(topic).Inc()
}

// RecordSentimentUpdate tracks a sentiment state update
func RecordSentimentUpdate(label string) {
	if SentimentUpdates == nil {
		return
	}
	SentimentUpdates.WithLabelValues(label).Inc()
}

// RecordIssueAdded tracks a unique issue entering an issue set
func RecordIssueAdded() {
	if IssuesRecorded == nil {
		return
	}
	IssuesRecorded.Inc()
}

// RecordSuggestionsReplaced tracks a suggestion list swap
func RecordSuggestionsReplaced() {
	if SuggestionsReplaced == nil {
		return
	}
	SuggestionsReplaced.Inc()
}

// RecordLearningEmitted tracks an emitted session learning
func RecordLearningEmitted() {
	if LearningsEmitted == nil {
		return
	}
	LearningsEmitted.Inc()
}

// RecordTicketSynthesized tracks a completed synthesis
func RecordTicketSynthesized(priority string) {
	if TicketsSynthesized == nil {
		return
	}
	TicketsSynthesized.WithLabelValues(priority).Inc()
}
