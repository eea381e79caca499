package tui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"lsphost/internal/tools"
)

func testModel() InstallModel {
	return NewInstallModel("Installing language servers", []tools.ToolIdentity{
		{Name: "Swift-MesonLSP", Version: "3.0.20"},
		{Name: "mesonlsp", Version: "4.3.7"},
	})
}

func send(t *testing.T, m InstallModel, msgs ...tea.Msg) (InstallModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var updated tea.Model
		updated, cmd = m.Update(msg)
		m = updated.(InstallModel)
	}
	return m, cmd
}

func TestInstallModelStartsWaiting(t *testing.T) {
	m := testModel()
	view := m.View()

	if !strings.Contains(view, "Installing language servers") {
		t.Errorf("title missing from view:\n%s", view)
	}
	if got := strings.Count(view, "waiting"); got != 2 {
		t.Errorf("expected 2 waiting rows, got %d:\n%s", got, view)
	}
	if !strings.Contains(view, "0/2 finished") {
		t.Errorf("footer missing from view:\n%s", view)
	}
}

func TestInstallModelTracksPhases(t *testing.T) {
	m, _ := send(t, testModel(),
		EventMsg{Tool: "Swift-MesonLSP", Phase: tools.PhasePreparing},
		EventMsg{Tool: "Swift-MesonLSP", Phase: tools.PhaseDownloading, Downloaded: 512, Total: 1024},
	)

	row := m.rows[0]
	if row.phase != tools.PhaseDownloading || row.downloaded != 512 || row.total != 1024 {
		t.Fatalf("unexpected row after download event: %+v", row)
	}
	view := m.View()
	if !strings.Contains(view, "512B  50%") {
		t.Errorf("expected transfer counter in view:\n%s", view)
	}
	if !strings.Contains(view, "█") {
		t.Errorf("expected progress bar in view:\n%s", view)
	}

	m, _ = send(t, m,
		EventMsg{Tool: "Swift-MesonLSP", Phase: tools.PhaseVerifying, Downloaded: 1024, Total: 1024},
		EventMsg{Tool: "Swift-MesonLSP", Phase: tools.PhaseInstalled, Path: "/cache/Swift-MesonLSP/Swift-MesonLSP"},
	)
	view = m.View()
	if !strings.Contains(view, "/cache/Swift-MesonLSP/Swift-MesonLSP") {
		t.Errorf("expected install path in view:\n%s", view)
	}
	if strings.Contains(view, "█") {
		t.Errorf("progress bar should disappear after install:\n%s", view)
	}
	if !strings.Contains(view, "1/2 finished") {
		t.Errorf("expected 1/2 finished:\n%s", view)
	}
}

func TestInstallModelUnknownTotal(t *testing.T) {
	m, _ := send(t, testModel(),
		EventMsg{Tool: "mesonlsp", Phase: tools.PhaseDownloading, Downloaded: 1536, Total: -1})

	view := m.View()
	if !strings.Contains(view, "1.5KiB") {
		t.Errorf("expected byte counter:\n%s", view)
	}
	if strings.Contains(view, "█") {
		t.Errorf("no bar expected without a content length:\n%s", view)
	}
}

func TestInstallModelFailureAndCache(t *testing.T) {
	m, _ := send(t, testModel(),
		EventMsg{Tool: "Swift-MesonLSP", Phase: tools.PhaseFailed, Err: errors.New("invalid hash")},
		EventMsg{Tool: "mesonlsp", Phase: tools.PhaseCached, Path: "/cache/mesonlsp/mesonlsp"},
	)

	done, total := m.Counts()
	if done != 2 || total != 2 {
		t.Errorf("Counts() = %d/%d, want 2/2", done, total)
	}
	view := m.View()
	for _, want := range []string{"✗", "invalid hash", "✓", "cached", "/cache/mesonlsp/mesonlsp"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view:\n%s", want, view)
		}
	}
}

func TestInstallModelAddsUnlistedTool(t *testing.T) {
	m, _ := send(t, testModel(), EventMsg{Tool: "extra", Phase: tools.PhasePreparing})

	if len(m.rows) != 3 || m.rows[2].name != "extra" {
		t.Fatalf("expected extra row, got %+v", m.rows)
	}
	if !strings.Contains(m.View(), "0/3 finished") {
		t.Errorf("expected new row to count toward total:\n%s", m.View())
	}
}

func TestInstallModelDoneQuits(t *testing.T) {
	m, cmd := send(t, testModel(), installDoneMsg{})
	if cmd == nil {
		t.Fatal("expected tea.Quit command")
	}
	if m.Err() != nil {
		t.Errorf("unexpected error: %v", m.Err())
	}
	if strings.Contains(m.View(), "finished") {
		t.Errorf("footer should be gone once done:\n%s", m.View())
	}

	m, _ = send(t, testModel(), installDoneMsg{err: errors.New("boom")})
	if !strings.Contains(m.View(), "Error: boom") {
		t.Errorf("expected error in view:\n%s", m.View())
	}
}

func TestInstallModelCtrlC(t *testing.T) {
	m, cmd := send(t, testModel(), tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected tea.Quit command")
	}
	if !m.Interrupted() {
		t.Error("expected Interrupted() after ctrl+c")
	}
	if !strings.Contains(m.View(), "Interrupted") {
		t.Errorf("expected interrupt notice:\n%s", m.View())
	}
}

func TestInstallModelSpinner(t *testing.T) {
	m := testModel()
	if m.Init() == nil {
		t.Fatal("Init should start the spinner")
	}

	tick := spinner.TickMsg{ID: m.spinner.ID()}
	_, cmd := send(t, m, tick)
	if cmd == nil {
		t.Error("spinner should keep ticking while installing")
	}

	m, _ = send(t, m, installDoneMsg{})
	if _, cmd = send(t, m, tick); cmd != nil {
		t.Error("spinner should stop once finished")
	}
}

func TestInstallModelBarFollowsWindow(t *testing.T) {
	tests := []struct {
		width int
		want  int
	}{
		{width: 40, want: minBar},
		{width: 70, want: 22},
		{width: 200, want: maxBar},
	}
	for _, tt := range tests {
		m, _ := send(t, testModel(), tea.WindowSizeMsg{Width: tt.width, Height: 24})
		if m.bar.Width != tt.want {
			t.Errorf("width %d: bar width = %d, want %d", tt.width, m.bar.Width, tt.want)
		}
	}
}

func TestRunInstallWaitsForWork(t *testing.T) {
	var out bytes.Buffer
	model := NewInstallModel("", []tools.ToolIdentity{{Name: "Tool", Version: "1.0"}})

	returned := false
	err := RunInstall(context.Background(), &out, model, func(ctx context.Context, observe tools.Observer) error {
		observe(tools.Event{Tool: "Tool", Phase: tools.PhaseDownloading, Downloaded: 1, Total: 2})
		observe(tools.Event{Tool: "Tool", Phase: tools.PhaseInstalled, Path: "/cache/Tool/Tool"})
		returned = true
		return nil
	}, tea.WithInput(nil))
	if err != nil {
		t.Fatalf("RunInstall() error = %v", err)
	}
	if !returned {
		t.Error("RunInstall returned before work finished")
	}
	if !strings.Contains(out.String(), "Tool") {
		t.Errorf("expected tool in output, got %q", out.String())
	}
}

func TestRunInstallReturnsWorkError(t *testing.T) {
	boom := errors.New("boom")
	err := RunInstall(context.Background(), &bytes.Buffer{}, testModel(), func(context.Context, tools.Observer) error {
		return boom
	}, tea.WithInput(nil))
	if !errors.Is(err, boom) {
		t.Errorf("RunInstall() error = %v, want %v", err, boom)
	}
}

func TestInstallReporterSendsEvents(t *testing.T) {
	var msgs []tea.Msg
	r := NewInstallReporter(func(msg tea.Msg) { msgs = append(msgs, msg) })
	r.Observe(tools.Event{Tool: "Tool", Phase: tools.PhaseVerifying})

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	ev, ok := msgs[0].(EventMsg)
	if !ok || ev.Tool != "Tool" || ev.Phase != tools.PhaseVerifying {
		t.Errorf("unexpected message %#v", msgs[0])
	}
}
