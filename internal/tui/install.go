package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"lsphost/internal/tools"
)

const (
	phaseWidth     = 11
	detailWidth    = 48
	defaultBar     = 24
	minBar, maxBar = 10, 40
)

// EventMsg delivers one resolver event to the install view.
type EventMsg tools.Event

// installDoneMsg ends the program once the install work has returned.
type installDoneMsg struct {
	err error
}

type toolRow struct {
	name       string
	version    string
	phase      tools.Phase
	downloaded int64
	total      int64
	path       string
	err        error
}

// InstallModel renders one line per tool with a byte progress bar while the
// artifact downloads.
type InstallModel struct {
	title       string
	rows        []toolRow
	index       map[string]int
	spinner     spinner.Model
	bar         progress.Model
	finished    bool
	interrupted bool
	err         error
}

// NewInstallModel lists ids in install order, all waiting.
func NewInstallModel(title string, ids []tools.ToolIdentity) InstallModel {
	m := InstallModel{
		title:   title,
		index:   make(map[string]int, len(ids)),
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(activeStyle)),
		bar:     progress.New(progress.WithSolidFill("4"), progress.WithoutPercentage(), progress.WithWidth(defaultBar)),
	}
	for _, id := range ids {
		m.addRow(id.Name, id.Version)
	}
	return m
}

func (m *InstallModel) addRow(name, version string) int {
	m.index[name] = len(m.rows)
	m.rows = append(m.rows, toolRow{name: name, version: version})
	return len(m.rows) - 1
}

// Init satisfies the tea.Model interface.
func (m InstallModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update satisfies the tea.Model interface.
func (m InstallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-detailWidth, minBar), maxBar)
		return m, nil

	case EventMsg:
		m.apply(tools.Event(msg))
		return m, nil

	case installDoneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.finished = true
			m.interrupted = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *InstallModel) apply(ev tools.Event) {
	idx, ok := m.index[ev.Tool]
	if !ok {
		idx = m.addRow(ev.Tool, "")
	}
	row := &m.rows[idx]
	row.phase = ev.Phase
	switch ev.Phase {
	case tools.PhaseDownloading:
		row.downloaded, row.total = ev.Downloaded, ev.Total
	case tools.PhaseInstalled, tools.PhaseCached:
		row.path = ev.Path
	case tools.PhaseFailed:
		row.err = ev.Err
	}
}

// View satisfies the tea.Model interface.
func (m InstallModel) View() string {
	var b strings.Builder
	if m.title != "" {
		b.WriteString(TitleStyle.Render(m.title))
		b.WriteString("\n\n")
	}

	nameWidth, versionWidth := 0, 0
	for _, row := range m.rows {
		nameWidth = max(nameWidth, len(row.name))
		versionWidth = max(versionWidth, len(row.version))
	}
	for _, row := range m.rows {
		fmt.Fprintf(&b, "%s %s  %s  %s",
			m.icon(row.phase),
			pad(row.name, nameWidth),
			pad(row.version, versionWidth),
			PhaseStyle(row.phase).Render(pad(phaseLabel(row.phase), phaseWidth)))
		if detail := m.detail(row); detail != "" {
			b.WriteString("  ")
			b.WriteString(detail)
		}
		b.WriteByte('\n')
	}

	switch {
	case m.interrupted:
		b.WriteString("\nInterrupted; waiting for the current install to stop.\n")
	case m.err != nil:
		fmt.Fprintf(&b, "\nError: %v\n", m.err)
	case !m.finished:
		done, total := m.Counts()
		fmt.Fprintf(&b, "\n%d/%d finished\n", done, total)
	}
	return b.String()
}

func (m InstallModel) icon(p tools.Phase) string {
	switch {
	case p == "":
		return waitingStyle.Render("·")
	case p == tools.PhaseFailed:
		return failedStyle.Render("✗")
	case phaseFinished(p):
		return doneStyle.Render("✓")
	case m.finished:
		return " "
	default:
		return m.spinner.View()
	}
}

func (m InstallModel) detail(row toolRow) string {
	switch row.phase {
	case tools.PhaseDownloading:
		if row.total > 0 {
			frac := float64(row.downloaded) / float64(row.total)
			return m.bar.ViewAs(min(frac, 1)) + " " + FormatTransfer(row.downloaded, row.total)
		}
		return FormatTransfer(row.downloaded, row.total)
	case tools.PhaseInstalled, tools.PhaseCached:
		return TruncateWithEllipsis(row.path, detailWidth)
	case tools.PhaseFailed:
		if row.err != nil {
			return TruncateWithEllipsis(row.err.Error(), detailWidth)
		}
	}
	return ""
}

// Counts returns how many tools reached a final phase, and the total.
func (m InstallModel) Counts() (int, int) {
	done := 0
	for _, row := range m.rows {
		if phaseFinished(row.phase) {
			done++
		}
	}
	return done, len(m.rows)
}

// Interrupted reports whether the user stopped the program.
func (m InstallModel) Interrupted() bool {
	return m.interrupted
}

// Err returns the error the install work finished with.
func (m InstallModel) Err() error {
	return m.err
}
