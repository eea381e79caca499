//go:build windows

package supervisor

import (
	"errors"
	"os"
)

// signalTerminate kills the process; Windows has no SIGTERM equivalent for
// console programs started without a process group.
func signalTerminate(p *os.Process, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	default:
	}
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
