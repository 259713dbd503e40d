// Package pid guards against concurrent daemon instances with a PID file.
package pid

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/gabrielpetry/MangoHud/internal/errors"
)

const ErrAlreadyRunning = errors.ErrorCode("pid_already_running")

// Write records the current process ID at path. It refuses when the file
// names a live process; a file left behind by a dead process, or one with
// unreadable content, is considered stale and overwritten.
func Write(path string) error {
	errFactory := errors.New()

	if content, err := os.ReadFile(path); err == nil {
		oldPID, err := strconv.Atoi(strings.TrimSpace(string(content)))
		if err == nil && oldPID > 0 && processAlive(oldPID) {
			return errFactory.New(ErrAlreadyRunning).WithData(oldPID)
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file. A missing file is not an error.
func Remove(path string) error {
	errFactory := errors.New()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
