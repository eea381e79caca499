package tui

import (
	"os"
	"testing"
	"time"

	"lsphost/internal/tools"
)

func TestFormatTransfer(t *testing.T) {
	tests := []struct {
		done, total int64
		want        string
	}{
		{0, 0, "0B"},
		{1536, -1, "1.5KiB"},
		{3 << 20, 6 << 20, "3.0MiB  50%"},
		{10, 10, "10B 100%"},
	}
	for _, tt := range tests {
		if got := FormatTransfer(tt.done, tt.total); got != tt.want {
			t.Errorf("FormatTransfer(%d, %d) = %q, want %q", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestTruncateWithEllipsis(t *testing.T) {
	if got := TruncateWithEllipsis("/cache/Swift-MesonLSP/Swift-MesonLSP", 12); got != "/cache/Sw..." {
		t.Errorf("got %q", got)
	}
	if got := TruncateWithEllipsis("short", 12); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := NonEmptyOrDash("  "); got != "-" {
		t.Errorf("NonEmptyOrDash(blank) = %q", got)
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := formatElapsed(250 * time.Millisecond); got != "250ms" {
		t.Errorf("formatElapsed(250ms) = %q", got)
	}
	if got := formatElapsed(75 * time.Second); got != "1m15s" {
		t.Errorf("formatElapsed(75s) = %q", got)
	}
}

func TestPhaseFinished(t *testing.T) {
	for _, p := range []tools.Phase{tools.PhaseInstalled, tools.PhaseCached, tools.PhaseFailed} {
		if !phaseFinished(p) {
			t.Errorf("%s should be final", p)
		}
	}
	for _, p := range []tools.Phase{"", tools.PhasePreparing, tools.PhaseDownloading, tools.PhaseVerifying, tools.PhaseExtracting} {
		if phaseFinished(p) {
			t.Errorf("%q should not be final", p)
		}
	}
	if phaseLabel("") != "waiting" {
		t.Errorf("zero phase label = %q", phaseLabel(""))
	}
}

func TestDetectMode(t *testing.T) {
	t.Setenv(NoProgressEnv, "")
	t.Setenv("CI", "")

	if got := DetectMode(os.Stdout, false, true); got != ModeJSON {
		t.Errorf("json flag: got %v", got)
	}
	if got := DetectMode(os.Stdout, true, false); got != ModePlain {
		t.Errorf("--no-progress: got %v", got)
	}

	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := DetectMode(f, false, false); got != ModePlain {
		t.Errorf("regular file: got %v", got)
	}

	t.Setenv("CI", "true")
	if got := DetectMode(os.Stdout, false, false); got != ModePlain {
		t.Errorf("CI: got %v", got)
	}
	t.Setenv("CI", "")
	t.Setenv(NoProgressEnv, "1")
	if got := DetectMode(os.Stdout, false, false); got != ModePlain {
		t.Errorf("%s: got %v", NoProgressEnv, got)
	}
}
