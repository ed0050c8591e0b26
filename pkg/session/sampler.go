package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"assist-server/pkg/capture"
	"assist-server/pkg/errors"
	"assist-server/pkg/metrics"
)

// sampler drives the fixed-interval capture-and-classify loop for one
// active session. At most one cycle is in flight at a time: a tick that
// fires while the previous cycle's analysis is still outstanding is
// dropped, never queued. Results are tagged with the session epoch taken
// at sampler creation so anything arriving after stop() is discarded by
// the controller.
type sampler struct {
	logger   *logrus.Entry
	interval time.Duration
	analyzer capture.SignalAnalyzer
	handle   *capture.Handle
	epoch    uint64

	apply func(epoch uint64, sig capture.Signal)

	ctx      context.Context
	cancel   context.CancelFunc
	inFlight atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newSampler(logger *logrus.Entry, interval time.Duration, analyzer capture.SignalAnalyzer,
	handle *capture.Handle, epoch uint64, apply func(epoch uint64, sig capture.Signal)) *sampler {

	ctx, cancel := context.WithCancel(context.Background())
	return &sampler{
		logger:   logger,
		interval: interval,
		analyzer: analyzer,
		handle:   handle,
		epoch:    epoch,
		apply:    apply,
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *sampler) start() {
	go s.loop()
}

func (s *sampler) loop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *sampler) tick() {
	// At-most-one-in-flight: drop this tick if the previous cycle is
	// still analyzing
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("Sampler tick dropped, previous cycle still in flight")
		metrics.RecordTickSkipped(metrics.SkipReasonOverlap)
		return
	}

	go func() {
		defer s.inFlight.Store(false)

		sig, err := s.analyzer.Sample(s.ctx, s.handle)
		if err != nil {
			if errors.Is(err, errors.ErrAnalysisUnavailable) {
				s.logger.WithError(err).Debug("Analysis unavailable, tick skipped")
			} else {
				s.logger.WithError(err).Warn("Sample failed, tick skipped")
			}
			metrics.RecordTickSkipped(metrics.SkipReasonAnalysis)
			return
		}

		s.apply(s.epoch, sig)
	}()
}

// stop cancels the pending timer synchronously: when it returns, the tick
// loop has exited and no further cycles will start. An analysis already in
// flight finishes on its own; its result carries a stale epoch and is
// discarded by the controller.
func (s *sampler) stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		close(s.stopCh)
		<-s.doneCh
	})
}
