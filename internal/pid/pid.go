package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/procwatch/internal/errors"
)

const (
	pidFile = "procwatch.pid"
)

// DefaultPath returns the pid file location used by monitor mode.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), pidFile)
}

// Write records the current process ID in path. It fails with
// ErrAlreadyRunning if path names a live process other than this one.
// A stale or unreadable file is replaced.
func Write(path string) error {
	errFactory := errors.New()
	self := os.Getpid()

	if owner, ok := readOwner(path); ok && owner != self && alive(owner) {
		return errFactory.WithData(errors.ErrAlreadyRunning, struct {
			PID  int
			Path string
		}{
			PID:  owner,
			Path: path,
		})
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(self)), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the pid file if it belongs to this process.
func Remove(path string) error {
	errFactory := errors.New()

	owner, ok := readOwner(path)
	if !ok {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
	} else if owner != os.Getpid() {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func readOwner(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	owner, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || owner <= 0 {
		return 0, false
	}
	return owner, true
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// EPERM still means the process exists.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
