package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"lsphost/internal/tools"
)

// InstallReporter forwards resolver events to a running install view.
type InstallReporter struct {
	send func(tea.Msg)
}

// NewInstallReporter constructs a reporter that forwards events via send.
func NewInstallReporter(send func(tea.Msg)) *InstallReporter {
	return &InstallReporter{send: send}
}

// Observe implements tools.Observer.
func (r *InstallReporter) Observe(ev tools.Event) {
	r.send(EventMsg(ev))
}
