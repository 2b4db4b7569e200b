//go:build unix

package process

import (
	"context"
	"io/fs"
	"os"

	"codeberg.org/mutker/procwatch/internal/errors"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

const (
	ErrNotFound          = errors.ErrProcessNotFound
	ErrAccessDenied      = errors.ErrAccessDenied
	ErrInvalidPriority   = errors.ErrInvalidPriority
	ErrSourceUnavailable = errors.ErrSourceUnavailable
)

// classify maps an OS-level failure for pid onto a process error code.
func classify(pid int, err error) error {
	errFactory := errors.New()

	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrorProcessNotRunning),
		errors.Is(err, os.ErrProcessDone),
		errors.Is(err, unix.ESRCH),
		errors.Is(err, fs.ErrNotExist):
		return errFactory.Wrap(ErrNotFound, err).WithData(pid)
	case errors.Is(err, fs.ErrPermission),
		errors.Is(err, unix.EPERM),
		errors.Is(err, unix.EACCES):
		return errFactory.Wrap(ErrAccessDenied, err).WithData(pid)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errFactory.Wrap(errors.ErrTimeout, err)
	default:
		return errFactory.Wrap(errors.ErrOperationFailed, err).WithData(pid)
	}
}
