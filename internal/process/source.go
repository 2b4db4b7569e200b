//go:build unix

package process

import (
	"context"
	"math"
	"sync"

	"codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/logger"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

type tracked struct {
	proc    *process.Process
	created int64
}

// SystemSource reads the live process table through gopsutil.
type SystemSource struct {
	log logger.Logger

	mu    sync.Mutex
	known map[int32]tracked
}

var _ Source = (*SystemSource)(nil)

func NewSystemSource(log logger.Logger) *SystemSource {
	return &SystemSource{
		log:   log.With("process"),
		known: make(map[int32]tracked),
	}
}

// ListProcesses enumerates the process table. CPU usage is measured since
// the previous call for the same process instance, so a process seen for
// the first time reports 0.
func (s *SystemSource) ListProcesses(ctx context.Context) ([]Record, error) {
	errFactory := errors.New()

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errFactory.Wrap(ErrSourceUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[int32]tracked, len(procs))
	records := make([]Record, 0, len(procs))
	skipped := 0

	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, errFactory.Wrap(ErrSourceUnavailable, err)
		}
		if _, dup := next[p.Pid]; dup {
			continue
		}

		t, ok := s.track(ctx, p)
		if !ok {
			skipped++
			continue
		}
		rec, ok := collect(ctx, t.proc)
		if !ok {
			skipped++
			continue
		}

		next[p.Pid] = t
		records = append(records, rec)
	}

	s.known = next

	s.log.Debug().
		Int("records", len(records)).
		Int("skipped", skipped).
		Msg("Process table scanned")

	return records, nil
}

// track returns the cached handle for p unless its pid was reused by a
// newer process.
func (s *SystemSource) track(ctx context.Context, p *process.Process) (tracked, bool) {
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return tracked{}, false
	}
	if prev, ok := s.known[p.Pid]; ok && prev.created == created {
		return prev, true
	}
	return tracked{proc: p, created: created}, true
}

// collect reads one process. It reports false when any attribute is
// unreadable, which happens when the process exits mid-scan or belongs to
// another user.
func collect(ctx context.Context, p *process.Process) (Record, bool) {
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return Record{}, false
	}
	cpuPercent, err := p.PercentWithContext(ctx, 0)
	if err != nil {
		return Record{}, false
	}
	memPercent, err := p.MemoryPercentWithContext(ctx)
	if err != nil {
		return Record{}, false
	}
	threads, err := p.NumThreadsWithContext(ctx)
	if err != nil {
		return Record{}, false
	}

	return Record{
		PID:           int(p.Pid),
		Name:          name,
		CPUPercent:    math.Max(cpuPercent, 0),
		MemoryPercent: clampPercent(float64(memPercent)),
		Threads:       max(int(threads), 1),
	}, true
}

// Terminate sends SIGTERM to pid and returns without waiting for it to exit.
func (s *SystemSource) Terminate(ctx context.Context, pid int) error {
	p, err := s.lookup(ctx, pid)
	if err != nil {
		return err
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		return classify(pid, err)
	}

	s.log.Info().Int("pid", pid).Msg("Sent SIGTERM")
	return nil
}

// SetPriority changes the niceness of pid. Out-of-range levels are
// rejected before any system call.
func (s *SystemSource) SetPriority(ctx context.Context, pid, level int) error {
	if err := ValidatePriority(level); err != nil {
		return err
	}
	if _, err := s.lookup(ctx, pid); err != nil {
		return err
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, pid, level); err != nil {
		return classify(pid, err)
	}

	s.log.Info().Int("pid", pid).Int("level", level).Msg("Priority changed")
	return nil
}

// ExecutablePath resolves the executable of pid. Kernel threads have no
// executable and resolve to an empty path.
func (s *SystemSource) ExecutablePath(ctx context.Context, pid int) (string, error) {
	p, err := s.lookup(ctx, pid)
	if err != nil {
		return "", err
	}

	exe, err := p.ExeWithContext(ctx)
	if err == nil {
		return exe, nil
	}

	classified := classify(pid, err)
	if errors.HasCode(classified, ErrNotFound) {
		if running, runErr := p.IsRunningWithContext(ctx); runErr == nil && running {
			return "", nil
		}
	}
	return "", classified
}

// SystemStats reports machine-wide CPU and memory utilization. CPU usage is
// measured since the previous call.
func (s *SystemSource) SystemStats(ctx context.Context) (SystemStats, error) {
	errFactory := errors.New()

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return SystemStats{}, errFactory.Wrap(ErrSourceUnavailable, err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemStats{}, errFactory.Wrap(ErrSourceUnavailable, err)
	}

	stats := SystemStats{
		MemoryPercent:   vm.UsedPercent,
		MemoryTotal:     vm.Total,
		MemoryAvailable: vm.Available,
	}
	if len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	return stats, nil
}

func (s *SystemSource) lookup(ctx context.Context, pid int) (*process.Process, error) {
	if pid <= 0 || pid > math.MaxInt32 {
		return nil, errors.New().New(ErrNotFound).WithData(pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, classify(pid, err)
	}
	return p, nil
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

