// Package app wires the sampler, history, query engine and command facade
// into the single object presentation layers talk to.
package app

import (
	"context"
	"time"

	"codeberg.org/mutker/procwatch/internal/command"
	"codeberg.org/mutker/procwatch/internal/config"
	"codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/export"
	"codeberg.org/mutker/procwatch/internal/history"
	"codeberg.org/mutker/procwatch/internal/logger"
	"codeberg.org/mutker/procwatch/internal/metrics"
	"codeberg.org/mutker/procwatch/internal/process"
	"codeberg.org/mutker/procwatch/internal/query"
	"codeberg.org/mutker/procwatch/internal/sampler"
	"k8s.io/utils/clock"
)

// State owns every long-lived component. Reads are served from history;
// commands go straight to the source.
type State struct {
	cfg      *config.Config
	source   process.Source
	history  *history.Buffer
	sampler  *sampler.Sampler
	commands *command.Facade
	metrics  metrics.MetricsCollector
	log      logger.Logger
}

type options struct {
	log   logger.Logger
	clock clock.WithTicker
}

type Option func(*options)

// WithLogger sets the logger handed to every component.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock sets the clock driving the sampler.
func WithClock(c clock.WithTicker) Option {
	return func(o *options) { o.clock = c }
}

// New builds a State from cfg around source. The metrics store is opened
// when cfg enables it.
func New(cfg *config.Config, source process.Source, opts ...Option) (*State, error) {
	errFactory := errors.New()

	o := options{log: logger.Default(), clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	collector, err := metrics.NewService(metrics.Config{
		DBPath:       cfg.MetricsDB,
		BatchSize:    cfg.MetricsBatchSize,
		BatchTimeout: cfg.MetricsBatchTimeout,
		Enabled:      cfg.Metrics,
	}, o.log.With("metrics"))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitMetrics, err)
	}

	buf := history.New(cfg.HistorySize)

	return &State{
		cfg:     cfg,
		source:  source,
		history: buf,
		sampler: sampler.New(source, buf, cfg.Interval,
			sampler.WithClock(o.clock),
			sampler.WithTimeout(cfg.EffectiveSampleTimeout()),
			sampler.WithRecorder(collector),
			sampler.WithLogger(o.log),
		),
		commands: command.New(source, o.log),
		metrics:  collector,
		log:      o.log.With("app"),
	}, nil
}

// Run samples until ctx is canceled.
func (s *State) Run(ctx context.Context) error {
	return s.sampler.Run(ctx)
}

// Refresh takes one sample outside the regular schedule. It is meant for
// one-shot commands that do not start Run.
func (s *State) Refresh(ctx context.Context) error {
	return s.sampler.Cycle(ctx)
}

// Latest returns the most recent snapshot, if any.
func (s *State) Latest() (process.Snapshot, bool) {
	return s.history.Latest()
}

// Recent returns up to k snapshots, oldest first.
func (s *State) Recent(k int) []process.Snapshot {
	return s.history.Recent(k)
}

// Interval returns the sampling period.
func (s *State) Interval() time.Duration {
	return s.sampler.Interval()
}

// Stats reports sampler counters.
func (s *State) Stats() sampler.Stats {
	return s.sampler.Stats()
}

// DefaultParams returns the view parameters configured at startup.
func (s *State) DefaultParams() query.Params {
	return query.Params{
		Search:     s.cfg.Search,
		CPUMin:     s.cfg.CPUMin,
		MemMin:     s.cfg.MemMin,
		Column:     s.cfg.Sort,
		Descending: !s.cfg.Ascending,
		Limit:      s.cfg.Rows,
	}
}

// Query applies p to the latest snapshot. Before the first sample it
// returns an empty result.
func (s *State) Query(p query.Params) ([]process.Record, error) {
	snap, _ := s.history.Latest()
	return query.Apply(snap.Records, p)
}

// Kill asks pid to terminate.
func (s *State) Kill(ctx context.Context, pid int) error {
	return s.commands.Kill(ctx, pid)
}

// SetPriority changes the scheduling priority of pid.
func (s *State) SetPriority(ctx context.Context, pid, level int) error {
	return s.commands.SetPriority(ctx, pid, level)
}

// Details describes pid using the latest snapshot.
func (s *State) Details(ctx context.Context, pid int) (command.Details, error) {
	snap, _ := s.history.Latest()
	return s.commands.Details(ctx, pid, snap)
}

// SystemStats returns machine-wide utilization.
func (s *State) SystemStats(ctx context.Context) (process.SystemStats, error) {
	stats, err := s.source.SystemStats(ctx)
	if err != nil {
		return process.SystemStats{}, errors.New().Wrap(errors.ErrSourceUnavailable, err)
	}
	return stats, nil
}

// Export writes the rows selected by p from the latest snapshot to path.
func (s *State) Export(path string, p query.Params) (int, error) {
	rows, err := s.Query(p)
	if err != nil {
		return 0, err
	}
	if err := export.WriteFile(path, rows); err != nil {
		return 0, err
	}

	s.log.Info().Str("path", path).Int("rows", len(rows)).Msg("Exported process table")
	return len(rows), nil
}

// Close releases the metrics store.
func (s *State) Close() error {
	if err := s.metrics.Close(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	return nil
}
