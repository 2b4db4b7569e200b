// Package command executes user-initiated control requests against single
// processes.
package command

import (
	"context"

	"codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/logger"
	"codeberg.org/mutker/procwatch/internal/process"
)

// Details is the on-demand view of one process.
type Details struct {
	process.Record
	Path    string
	Sampled bool
}

// Facade validates requests before handing them to the OS. Every
// operation returns a coded error from internal/errors on failure.
type Facade struct {
	ctl process.Controller
	log logger.Logger
}

func New(ctl process.Controller, log logger.Logger) *Facade {
	if log == nil {
		log = logger.Nop()
	}
	return &Facade{ctl: ctl, log: log.With("command")}
}

// Kill asks the process to terminate.
func (f *Facade) Kill(ctx context.Context, pid int) error {
	if err := checkPID(pid); err != nil {
		return err
	}

	if err := f.ctl.Terminate(ctx, pid); err != nil {
		f.logFailure("kill", pid, err)
		return err
	}

	f.log.Info().Int("pid", pid).Msg("Sent terminate request")
	return nil
}

// SetPriority sets the scheduling priority of pid to level. Out-of-range
// levels are rejected without touching the process.
func (f *Facade) SetPriority(ctx context.Context, pid, level int) error {
	if err := process.ValidatePriority(level); err != nil {
		return err
	}
	if err := checkPID(pid); err != nil {
		return err
	}

	if err := f.ctl.SetPriority(ctx, pid, level); err != nil {
		f.logFailure("renice", pid, err)
		return err
	}

	f.log.Info().Int("pid", pid).Int("priority", level).Msg("Priority changed")
	return nil
}

// Details resolves the executable path of pid and merges it with the
// record from snap when the process was sampled. A process missing from
// snap is still described if it is alive.
//
// When the path is unreadable for lack of permission, the sampled record
// is returned with an empty Path together with the AccessDenied error.
func (f *Facade) Details(ctx context.Context, pid int, snap process.Snapshot) (Details, error) {
	if err := checkPID(pid); err != nil {
		return Details{}, err
	}

	d := Details{}
	d.Record, d.Sampled = snap.Find(pid)
	d.PID = pid

	path, err := f.ctl.ExecutablePath(ctx, pid)
	if err != nil {
		f.logFailure("details", pid, err)
		if d.Sampled && errors.HasCode(err, errors.ErrAccessDenied) {
			return d, err
		}
		return Details{}, err
	}

	d.Path = path
	return d, nil
}

// Describe renders err as a short message for display.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if code := errors.CodeOf(err); code != "" {
		return errors.GetErrorMessage(code)
	}
	return err.Error()
}

func checkPID(pid int) error {
	if pid <= 0 {
		return errors.New().New(errors.ErrProcessNotFound).WithData(pid)
	}
	return nil
}

func (f *Facade) logFailure(op string, pid int, err error) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		f.log.ErrorWithCode(appErr).Str("op", op).Int("pid", pid).Msg("Process command failed")
		return
	}
	f.log.Error().Err(err).Str("op", op).Int("pid", pid).Msg("Process command failed")
}
