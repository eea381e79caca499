//go:build !windows

package supervisor

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// signalTerminate asks the process to exit. A process whose exit has already
// been observed is left alone so a recycled PID is never signalled.
func signalTerminate(p *os.Process, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	default:
	}
	err := p.Signal(unix.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
