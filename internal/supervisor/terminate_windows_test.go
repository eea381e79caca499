//go:build windows

package supervisor

func ignoreTerminate() {}
