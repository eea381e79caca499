//go:build windows

package tools

import "os"

// processAlive relies on FindProcess opening a handle on Windows, which fails
// once the process is gone.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
