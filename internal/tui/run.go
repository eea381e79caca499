package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"lsphost/internal/tools"
)

// InstallWork performs the installs, reporting progress through observe.
type InstallWork func(ctx context.Context, observe tools.Observer) error

// RunInstall shows model while work runs in the background. Interrupting the
// program cancels the context passed to work, and RunInstall only returns
// once work has.
func RunInstall(ctx context.Context, out io.Writer, model InstallModel, work InstallWork, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithOutput(out)}, opts...)...)
	reporter := NewInstallReporter(p.Send)

	workDone := make(chan error, 1)
	go func() {
		err := work(ctx, reporter.Observe)
		workDone <- err
		p.Send(installDoneMsg{err: err})
	}()

	_, runErr := p.Run()
	cancel()
	workErr := <-workDone
	if runErr != nil {
		return runErr
	}
	return workErr
}
