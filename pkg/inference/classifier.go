package inference

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"assist-server/pkg/capture"
)

// Sentiment labels
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Timeline event categories
const (
	CategoryNavigation = "navigation"
	CategoryError      = "error"
	CategoryInput      = "input"
	CategorySystem     = "system"
	CategorySpeech     = "speech"
)

// Classification is the derived view of a single signal. Empty fields mean
// no rule matched; the caller's prior state stays unchanged for those.
type Classification struct {
	Topic           string
	TopicConfidence float64
	Sentiment       string
	Issue           string
	Category        string
}

// EngineStats tracks classification counts
type EngineStats struct {
	mutex            sync.RWMutex
	TotalSignals     int64 `json:"total_signals"`
	TopicMatches     int64 `json:"topic_matches"`
	SentimentMatches int64 `json:"sentiment_matches"`
	IssueMatches     int64 `json:"issue_matches"`
}

// Engine is a rule-based classifier that maps raw signal text to
// topic/sentiment/issue labels. Classification is stateless per call:
// the engine holds no session state, only rule tables and counters.
type Engine struct {
	logger *logrus.Entry
	stats  *EngineStats
}

// NewEngine creates a new classification engine
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{
		logger: logger.WithField("component", "inference_engine"),
		stats:  &EngineStats{},
	}
}

// Classify derives topic, sentiment, issue and timeline category from one
// signal. Topic and issue rules are ordered and the first match wins;
// sentiment rules are ordered and the last match wins.
func (e *Engine) Classify(sig capture.Signal) Classification {
	text := strings.ToLower(sig.Text)

	var result Classification

	switch sig.Kind {
	case capture.SignalFrame:
		result = e.classifyFrame(text, sig.Category)
	default:
		result = e.classifyTranscript(text)
	}

	result.Sentiment = e.classifySentiment(text)

	e.stats.mutex.Lock()
	e.stats.TotalSignals++
	if result.Topic != "" {
		e.stats.TopicMatches++
	}
	if result.Sentiment != "" {
		e.stats.SentimentMatches++
	}
	if result.Issue != "" {
		e.stats.IssueMatches++
	}
	e.stats.mutex.Unlock()

	if result.Topic != "" || result.Issue != "" {
		e.logger.WithFields(logrus.Fields{
			"topic":     result.Topic,
			"issue":     result.Issue,
			"sentiment": result.Sentiment,
		}).Debug("Signal classified")
	}

	return result
}

func (e *Engine) classifyTranscript(text string) Classification {
	result := Classification{Category: CategorySpeech}

	for _, rule := range transcriptTopicRules {
		if containsAny(text, rule.Keywords) {
			result.Topic = rule.Topic
			result.TopicConfidence = rule.Confidence
			result.Issue = rule.Issue
			break
		}
	}

	return result
}

func (e *Engine) classifyFrame(text, category string) Classification {
	result := Classification{Category: category}

	for _, rule := range frameTopicRules {
		if containsAny(text, rule.Keywords) {
			result.Topic = rule.Topic
			result.TopicConfidence = rule.Confidence
			break
		}
	}

	for _, rule := range frameIssueRules {
		if containsAny(text, rule.Keywords) {
			result.Issue = rule.Issue
			break
		}
	}

	if result.Category == "" {
		result.Category = CategorySystem
		for _, rule := range frameCategoryRules {
			if containsAny(text, rule.Keywords) {
				result.Category = rule.Category
				break
			}
		}
	}

	return result
}

func (e *Engine) classifySentiment(text string) string {
	label := ""
	for _, rule := range sentimentRules {
		if containsAny(text, rule.Keywords) {
			label = rule.Label
		}
	}
	return label
}

// GetStats returns a copy of the engine counters
func (e *Engine) GetStats() EngineStats {
	e.stats.mutex.RLock()
	defer e.stats.mutex.RUnlock()

	return EngineStats{
		TotalSignals:     e.stats.TotalSignals,
		TopicMatches:     e.stats.TopicMatches,
		SentimentMatches: e.stats.SentimentMatches,
		IssueMatches:     e.stats.IssueMatches,
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
