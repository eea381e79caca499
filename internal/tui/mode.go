package tui

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
)

// OutputMode describes how install progress is rendered.
type OutputMode int

const (
	// ModeTUI animates progress with bubbletea.
	ModeTUI OutputMode = iota
	// ModePlain prints one line per finished tool.
	ModePlain
	// ModeJSON prints the final statuses as JSON.
	ModeJSON
)

// NoProgressEnv disables animated output when set to any non-empty value.
const NoProgressEnv = "LSPHOST_NO_PROGRESS"

// DetectMode picks the output mode for out. Animation needs an interactive
// terminal outside CI and a TERM that can redraw lines.
func DetectMode(out io.Writer, noProgress, jsonOutput bool) OutputMode {
	switch {
	case jsonOutput:
		return ModeJSON
	case noProgress, os.Getenv(NoProgressEnv) != "", os.Getenv("CI") != "":
		return ModePlain
	case !isTerminal(out):
		return ModePlain
	case runtime.GOOS != "windows" && dumbTerm(os.Getenv("TERM")):
		return ModePlain
	}
	return ModeTUI
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func dumbTerm(term string) bool {
	return term == "" || strings.EqualFold(term, "dumb")
}
