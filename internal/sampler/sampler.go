// Package sampler drives periodic capture of the process table into history.
package sampler

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/history"
	"codeberg.org/mutker/procwatch/internal/logger"
	"codeberg.org/mutker/procwatch/internal/metrics"
	"codeberg.org/mutker/procwatch/internal/process"
	"k8s.io/utils/clock"
)

const DefaultInterval = 2 * time.Second

// Stats counts sampler activity since start.
type Stats struct {
	Cycles       uint64
	Failures     uint64
	LastDuration time.Duration
	LastError    error
}

// Sampler is the only writer of its history buffer.
type Sampler struct {
	source   process.Lister
	history  *history.Buffer
	recorder metrics.MetricsCollector
	clock    clock.WithTicker
	log      logger.Logger
	interval time.Duration
	timeout  time.Duration

	mu    sync.Mutex
	stats Stats
}

type Option func(*Sampler)

// WithClock replaces the wall clock, typically with a fake clock in tests.
func WithClock(c clock.WithTicker) Option {
	return func(s *Sampler) { s.clock = c }
}

// WithTimeout bounds a single pass over the process table. It defaults to
// the interval.
func WithTimeout(d time.Duration) Option {
	return func(s *Sampler) { s.timeout = d }
}

// WithRecorder sends per-cycle metrics to r.
func WithRecorder(r metrics.MetricsCollector) Option {
	return func(s *Sampler) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sampler) { s.log = l }
}

func New(source process.Lister, buf *history.Buffer, interval time.Duration, opts ...Option) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Sampler{
		source:   source,
		history:  buf,
		recorder: metrics.Nop(),
		clock:    clock.RealClock{},
		log:      logger.Nop(),
		interval: interval,
		timeout:  interval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeout <= 0 {
		s.timeout = interval
	}
	s.log = s.log.With("sampler")
	return s
}

// Run samples once immediately and then once per interval until ctx is
// done. Cycles never overlap: a tick that arrives while a cycle is still
// running is held and starts the next cycle as soon as it finishes, and
// further ticks in between are dropped.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Int("history", s.history.Cap()).Msg("Sampler started")

	_ = s.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Sampler stopped")
			return nil
		case <-ticker.C():
			_ = s.Cycle(ctx)
		}
	}
}

// Cycle performs one sampling pass and appends the result to history. On
// failure history is left untouched, so the previous snapshot stays the
// latest one. A pass interrupted by ctx is discarded.
func (s *Sampler) Cycle(ctx context.Context) error {
	started := s.clock.Now()

	passCtx, cancel := context.WithTimeout(ctx, s.timeout)
	records, err := s.source.ListProcesses(passCtx)
	cancel()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	elapsed := s.clock.Since(started)
	if err != nil {
		if !errors.HasCode(err, errors.ErrSourceUnavailable) {
			err = errors.New().Wrap(errors.ErrSourceUnavailable, err)
		}
		s.fail(ctx, started, elapsed, err)
		return err
	}

	snap := s.history.Append(process.Snapshot{Taken: started, Records: records})
	s.succeed(ctx, snap, elapsed)
	return nil
}

func (s *Sampler) succeed(ctx context.Context, snap process.Snapshot, elapsed time.Duration) {
	s.mu.Lock()
	s.stats.Cycles++
	s.stats.LastDuration = elapsed
	s.stats.LastError = nil
	s.mu.Unlock()

	cycle := &metrics.CycleMetrics{
		Timestamp: snap.Taken,
		Seq:       snap.Seq,
		Processes: snap.Len(),
		Duration:  elapsed,
	}
	for _, r := range snap.Records {
		cycle.TotalCPU += r.CPUPercent
		cycle.TotalMemory += r.MemoryPercent
	}
	s.record(ctx, cycle)

	if elapsed > s.interval {
		s.log.Warn().
			Dur("elapsed", elapsed).
			Dur("interval", s.interval).
			Msg("Sampling cycle overran its interval")
	}

	s.log.Debug().
		Uint64("seq", snap.Seq).
		Int("processes", snap.Len()).
		Dur("elapsed", elapsed).
		Msg("Snapshot captured")
}

func (s *Sampler) fail(ctx context.Context, started time.Time, elapsed time.Duration, err error) {
	s.mu.Lock()
	s.stats.Cycles++
	s.stats.Failures++
	s.stats.LastDuration = elapsed
	s.stats.LastError = err
	failures := s.stats.Failures
	s.mu.Unlock()

	s.record(ctx, &metrics.CycleMetrics{Timestamp: started, Duration: elapsed, Failed: true})

	var appErr errors.Error
	if errors.As(err, &appErr) {
		s.log.ErrorWithCode(appErr).Uint64("failures", failures).Msg("Sampling cycle failed, keeping previous snapshot")
		return
	}
	s.log.Error().Err(err).Uint64("failures", failures).Msg("Sampling cycle failed, keeping previous snapshot")
}

func (s *Sampler) record(ctx context.Context, cycle *metrics.CycleMetrics) {
	if err := s.recorder.Record(ctx, cycle); err != nil {
		s.log.Warn().Err(err).Msg("Failed to record cycle metrics")
	}
}

// Stats returns a copy of the current counters.
func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Interval returns the sampling period.
func (s *Sampler) Interval() time.Duration {
	return s.interval
}
