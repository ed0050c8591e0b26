package insight

import (
	"github.com/sirupsen/logrus"
)

// Learning kinds
const (
	KindIssue    = "issue"
	KindSolution = "solution"
	KindTip      = "tip"
	KindProcess  = "process"
)

// Learning is one key takeaway surfaced during a monitoring session
type Learning struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Kind string `json:"kind"`
}

// defaultPool is the ordered pool learnings are drawn from
var defaultPool = []Learning{
	{ID: "1", Text: "User attempted login 3 times before encountering error - suggests credentials may be correct", Kind: KindIssue},
	{ID: "2", Text: "Browser console shows CORS errors - indicates backend configuration issue", Kind: KindIssue},
	{ID: "3", Text: "Clear browser cache and cookies before retry", Kind: KindSolution},
	{ID: "4", Text: "Check if VPN is enabled - may cause connectivity issues", Kind: KindSolution},
	{ID: "5", Text: "User is comfortable with browser DevTools - intermediate technical skill level", Kind: KindTip},
	{ID: "6", Text: "Document the error codes for future reference", Kind: KindProcess},
	{ID: "7", Text: "Similar pattern seen in previous ticket #1234", Kind: KindTip},
}

// Policy emits session learnings on a deterministic schedule: at most one
// new learning every EmitEvery ticks, drawn in order from a fixed pool,
// skipping entries already emitted, up to MaxLearnings total. The policy is
// owned by a single session controller and is not safe for concurrent use.
type Policy struct {
	logger    *logrus.Entry
	pool      []Learning
	emitEvery int
	max       int

	emitted map[string]bool
	next    int
}

// NewPolicy creates a learning policy over the default pool
func NewPolicy(logger *logrus.Logger, emitEvery, max int) *Policy {
	if emitEvery <= 0 {
		emitEvery = 3
	}
	if max <= 0 {
		max = 5
	}

	return &Policy{
		logger:    logger.WithField("component", "insight_policy"),
		pool:      defaultPool,
		emitEvery: emitEvery,
		max:       max,
		emitted:   make(map[string]bool),
	}
}

// SetPool replaces the learning pool. Intended for embedders that maintain
// their own knowledge base.
func (p *Policy) SetPool(pool []Learning) {
	p.pool = pool
	p.next = 0
}

// Observe is called once per processed tick (1-based) and reports whether
// a new learning is due on this tick.
func (p *Policy) Observe(tick int) (Learning, bool) {
	if tick <= 0 || tick%p.emitEvery != 0 {
		return Learning{}, false
	}
	if len(p.emitted) >= p.max {
		return Learning{}, false
	}

	for p.next < len(p.pool) {
		candidate := p.pool[p.next]
		p.next++
		if p.emitted[candidate.ID] {
			continue
		}

		p.emitted[candidate.ID] = true
		p.logger.WithFields(logrus.Fields{
			"tick":        tick,
			"learning_id": candidate.ID,
			"kind":        candidate.Kind,
		}).Debug("Learning emitted")
		return candidate, true
	}

	return Learning{}, false
}

// EmittedCount returns how many learnings have been emitted so far
func (p *Policy) EmittedCount() int {
	return len(p.emitted)
}
