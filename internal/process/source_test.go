//go:build linux

package process_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/logger"
	"codeberg.org/mutker/procwatch/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// absentPID is above the default pid_max, so it never resolves.
const absentPID = 1 << 30

func newSource() *process.SystemSource {
	return process.NewSystemSource(logger.Nop())
}

func TestListProcessesIncludesSelf(t *testing.T) {
	src := newSource()
	ctx := context.Background()

	for pass := 0; pass < 2; pass++ {
		records, err := src.ListProcesses(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, records)

		snap := process.Snapshot{Records: records}
		self, ok := snap.Find(os.Getpid())
		require.True(t, ok, "own pid missing on pass %d", pass)
		assert.NotEmpty(t, self.Name)
		assert.GreaterOrEqual(t, self.Threads, 1)
		assert.GreaterOrEqual(t, self.CPUPercent, 0.0)
		assert.GreaterOrEqual(t, self.MemoryPercent, 0.0)
		assert.LessOrEqual(t, self.MemoryPercent, 100.0)

		seen := make(map[int]bool, len(records))
		for _, r := range records {
			require.False(t, seen[r.PID], "duplicate pid %d", r.PID)
			seen[r.PID] = true
		}
	}
}

func TestListProcessesCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSource().ListProcesses(ctx)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, process.ErrSourceUnavailable))
}

func TestTerminate(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	require.NoError(t, newSource().Terminate(context.Background(), cmd.Process.Pid))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		var exitErr *exec.ExitError
		require.ErrorAs(t, err, &exitErr)
		status := exitErr.Sys().(syscall.WaitStatus)
		assert.Equal(t, syscall.SIGTERM, status.Signal())
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit after SIGTERM")
	}
}

func TestTerminateNotFound(t *testing.T) {
	src := newSource()

	err := src.Terminate(context.Background(), absentPID)
	assert.True(t, errors.HasCode(err, process.ErrNotFound), "got %v", err)

	err = src.Terminate(context.Background(), 0)
	assert.True(t, errors.HasCode(err, process.ErrNotFound), "got %v", err)
}

func TestSetPriorityRejectsOutOfRange(t *testing.T) {
	src := newSource()

	for _, level := range []int{process.MinPriority - 1, process.MaxPriority + 1} {
		err := src.SetPriority(context.Background(), os.Getpid(), level)
		assert.True(t, errors.HasCode(err, process.ErrInvalidPriority), "level %d: %v", level, err)
	}
}

func TestSetPriorityRaisesChildNiceness(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	// Raising niceness never needs privileges.
	require.NoError(t, newSource().SetPriority(context.Background(), cmd.Process.Pid, process.MaxPriority))

	assert.Equal(t, strconv.Itoa(process.MaxPriority), statNice(t, cmd.Process.Pid))
}

// statNice reads the nice column (field 19) of /proc/<pid>/stat.
func statNice(t *testing.T, pid int) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	require.NoError(t, err)
	line := string(data)
	fields := strings.Fields(line[strings.LastIndexByte(line, ')')+1:])
	require.Greater(t, len(fields), 16)
	return fields[16]
}

func TestSetPriorityNotFound(t *testing.T) {
	err := newSource().SetPriority(context.Background(), absentPID, 0)
	assert.True(t, errors.HasCode(err, process.ErrNotFound), "got %v", err)
}

func TestExecutablePathSelf(t *testing.T) {
	want, err := os.Executable()
	require.NoError(t, err)
	want, err = filepath.EvalSymlinks(want)
	require.NoError(t, err)

	got, err := newSource().ExecutablePath(context.Background(), os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestExecutablePathNotFound(t *testing.T) {
	_, err := newSource().ExecutablePath(context.Background(), absentPID)
	assert.True(t, errors.HasCode(err, process.ErrNotFound), "got %v", err)
}

func TestSystemStats(t *testing.T) {
	stats, err := newSource().SystemStats(context.Background())
	require.NoError(t, err)
	assert.Positive(t, stats.MemoryTotal)
	assert.LessOrEqual(t, stats.MemoryAvailable, stats.MemoryTotal)
	assert.GreaterOrEqual(t, stats.CPUPercent, 0.0)
}

func TestValidatePriority(t *testing.T) {
	assert.NoError(t, process.ValidatePriority(process.MinPriority))
	assert.NoError(t, process.ValidatePriority(0))
	assert.NoError(t, process.ValidatePriority(process.MaxPriority))
	assert.Error(t, process.ValidatePriority(-21))
	assert.Error(t, process.ValidatePriority(20))
}

func TestSnapshotFind(t *testing.T) {
	snap := process.Snapshot{Records: []process.Record{{PID: 100, Name: "chrome"}, {PID: 101, Name: "bash"}}}

	r, ok := snap.Find(101)
	assert.True(t, ok)
	assert.Equal(t, "bash", r.Name)

	_, ok = snap.Find(5)
	assert.False(t, ok)
	assert.Equal(t, 2, snap.Len())
}
