// Package preview debounces AUTO candidate recomputation and runs it off the
// caller's goroutine.
package preview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/menta2k/sprite-extractor/pkg/types"
)

// DefaultDelay is the debounce interval between a settings change and the
// detection run.
const DefaultDelay = 300 * time.Millisecond

// DetectFunc computes candidates for request seq.
type DetectFunc func(ctx context.Context, seq uint64) ([]types.SpriteRect, error)

// Result is delivered once per completed run.
type Result struct {
	Seq        uint64
	Candidates []types.SpriteRect
	Err        error
}

// Scheduler coalesces requests within Delay into one detection run. Each run
// gets a monotonically increasing sequence number.
//
// With DiscardStale off, every completed run is delivered in completion
// order, so a slow older run can overwrite a newer one. With it on, starting
// a run cancels the previous one and only the newest run is delivered.
type Scheduler struct {
	Delay        time.Duration
	DiscardStale bool

	detect   DetectFunc
	onResult func(Result)
	logger   *slog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	timerGen uint64
	pending  bool
	seq      uint64
	cancel   context.CancelFunc
	stopped  bool
	wg       sync.WaitGroup

	deliverMu sync.Mutex
}

// New creates a Scheduler. onResult is called from a worker goroutine; calls
// are serialized.
func New(detect DetectFunc, onResult func(Result)) *Scheduler {
	return &Scheduler{
		Delay:    DefaultDelay,
		detect:   detect,
		onResult: onResult,
		logger:   slog.Default(),
	}
}

// SetLogger replaces the logger.
func (s *Scheduler) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Request schedules a run after Delay, replacing any pending one.
func (s *Scheduler) Request() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	s.pending = true
	s.timer = time.AfterFunc(s.Delay, func() { s.fire(gen) })
}

// Pending reports whether a debounced run has not started yet.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Flush starts the pending run immediately, if any.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	gen := s.timerGen
	s.mu.Unlock()
	s.fire(gen)
}

// Wait blocks until every started run has been delivered or dropped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Latest returns the sequence number of the newest started run.
func (s *Scheduler) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Stop cancels the pending timer and any in-flight run. Later requests are
// ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || !s.pending || gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.seq++
	seq := s.seq
	if s.DiscardStale && s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, cancel, seq)
}

func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, seq uint64) {
	defer s.wg.Done()
	defer cancel()

	start := time.Now()
	cands, err := s.detect(ctx, seq)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	stale := seq != s.seq
	stopped := s.stopped
	s.mu.Unlock()

	if stopped || (s.DiscardStale && stale) {
		s.logger.Debug("preview run dropped", "seq", seq, "stale", stale)
		return
	}
	s.logger.Debug("preview run finished", "seq", seq, "candidates", len(cands), "elapsed", time.Since(start))
	if s.onResult != nil {
		s.onResult(Result{Seq: seq, Candidates: cands, Err: err})
	}
}
