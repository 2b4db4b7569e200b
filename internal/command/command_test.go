package command_test

import (
	"bytes"
	"context"
	"testing"

	"codeberg.org/mutker/procwatch/internal/command"
	"codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/logger"
	"codeberg.org/mutker/procwatch/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op    string
	pid   int
	level int
}

type fakeController struct {
	calls []call
	err   error
	path  string
}

func (f *fakeController) Terminate(_ context.Context, pid int) error {
	f.calls = append(f.calls, call{op: "terminate", pid: pid})
	return f.err
}

func (f *fakeController) SetPriority(_ context.Context, pid, level int) error {
	f.calls = append(f.calls, call{op: "priority", pid: pid, level: level})
	return f.err
}

func (f *fakeController) ExecutablePath(_ context.Context, pid int) (string, error) {
	f.calls = append(f.calls, call{op: "path", pid: pid})
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

func TestKill(t *testing.T) {
	ctl := &fakeController{}
	f := command.New(ctl, logger.Nop())

	require.NoError(t, f.Kill(context.Background(), 1234))
	assert.Equal(t, []call{{op: "terminate", pid: 1234}}, ctl.calls)
}

func TestKillPropagatesCode(t *testing.T) {
	var buf bytes.Buffer
	ctl := &fakeController{err: errors.New().New(errors.ErrAccessDenied)}
	f := command.New(ctl, logger.New(&buf))

	err := f.Kill(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAccessDenied))
	assert.Contains(t, buf.String(), `"error_code":"access_denied"`)
	assert.Contains(t, buf.String(), `"component":"command"`)
}

func TestNonPositivePIDIsNotFound(t *testing.T) {
	ctl := &fakeController{}
	f := command.New(ctl, nil)
	ctx := context.Background()

	for _, pid := range []int{0, -1} {
		assert.True(t, errors.HasCode(f.Kill(ctx, pid), errors.ErrProcessNotFound))
		assert.True(t, errors.HasCode(f.SetPriority(ctx, pid, 5), errors.ErrProcessNotFound))
		_, err := f.Details(ctx, pid, process.Snapshot{})
		assert.True(t, errors.HasCode(err, errors.ErrProcessNotFound))
	}
	assert.Empty(t, ctl.calls)
}

func TestSetPriority(t *testing.T) {
	tests := []struct {
		name    string
		level   int
		wantErr bool
	}{
		{"lowest", process.MinPriority, false},
		{"zero", 0, false},
		{"highest", process.MaxPriority, false},
		{"below range", -21, true},
		{"above range", 20, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &fakeController{}
			f := command.New(ctl, logger.Nop())

			err := f.SetPriority(context.Background(), 42, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrInvalidPriority))
				assert.Empty(t, ctl.calls, "no OS call for invalid priority")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []call{{op: "priority", pid: 42, level: tt.level}}, ctl.calls)
		})
	}
}

func TestDetails(t *testing.T) {
	ctl := &fakeController{path: "/usr/bin/bash"}
	f := command.New(ctl, logger.Nop())
	snap := process.Snapshot{Seq: 3, Records: []process.Record{
		{PID: 7, Name: "bash", CPUPercent: 1.5, MemoryPercent: 0.4, Threads: 1},
	}}

	d, err := f.Details(context.Background(), 7, snap)
	require.NoError(t, err)
	assert.True(t, d.Sampled)
	assert.Equal(t, "bash", d.Name)
	assert.Equal(t, "/usr/bin/bash", d.Path)

	d, err = f.Details(context.Background(), 9, snap)
	require.NoError(t, err)
	assert.False(t, d.Sampled)
	assert.Equal(t, 9, d.PID)
	assert.Equal(t, "/usr/bin/bash", d.Path)
}

func TestDetailsNotFound(t *testing.T) {
	ctl := &fakeController{err: errors.New().New(errors.ErrProcessNotFound)}
	f := command.New(ctl, logger.Nop())

	_, err := f.Details(context.Background(), 9, process.Snapshot{})
	assert.True(t, errors.HasCode(err, errors.ErrProcessNotFound))
}

func TestDetailsAccessDeniedKeepsSampledRecord(t *testing.T) {
	ctl := &fakeController{err: errors.New().New(errors.ErrAccessDenied)}
	f := command.New(ctl, logger.Nop())
	snap := process.Snapshot{Records: []process.Record{
		{PID: 1, Name: "systemd", CPUPercent: 0.1, MemoryPercent: 0.3, Threads: 1},
	}}

	d, err := f.Details(context.Background(), 1, snap)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAccessDenied))
	assert.True(t, d.Sampled)
	assert.Equal(t, "systemd", d.Name)
	assert.Empty(t, d.Path)

	// Without a sampled record there is nothing to show.
	d, err = f.Details(context.Background(), 2, snap)
	assert.True(t, errors.HasCode(err, errors.ErrAccessDenied))
	assert.Equal(t, command.Details{}, d)
}

func TestDescribe(t *testing.T) {
	assert.Empty(t, command.Describe(nil))
	assert.Equal(t, "Process no longer exists",
		command.Describe(errors.New().Wrap(errors.ErrProcessNotFound, context.Canceled)))
	assert.Equal(t, assert.AnError.Error(), command.Describe(assert.AnError))
}
