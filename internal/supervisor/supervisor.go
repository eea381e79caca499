// Package supervisor owns the lifecycle of one external language-server
// process: resolving its binary, launching it, handing its stdio to a
// protocol client and tearing it down.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "lsphost/internal/errors"
	"lsphost/internal/notify"
	"lsphost/internal/tools"
)

const (
	// DefaultStartupGrace is how long a new process must stay alive to count as started.
	DefaultStartupGrace = 500 * time.Millisecond
	// DefaultStopGrace is how long Dispose waits after SIGTERM before killing.
	DefaultStopGrace = 3 * time.Second
)

// Notification texts shown to the user.
const (
	MsgDownloaded      = "Language server was downloaded."
	MsgDownloadFailed  = "Failed to download the language server."
	MsgNotFound        = "Failed to find a language server on the system."
	MsgUnsupported     = "The configured language server does not support the current system."
	MsgRestartFailed   = "Failed to restart the language server because a binary was not found and could not be downloaded"
	MsgUnexpectedExit  = "The language server exited unexpectedly."
	msgLaunchFailedFmt = "Failed to start the language server: %v"
)

// ConfigProvider exposes the user settings the supervisor reads on restart.
type ConfigProvider interface {
	OverridePath() string
	DownloadAllowed() bool
}

// ProtocolClient takes ownership of a running server's stdio.
type ProtocolClient interface {
	Attach(label string, stdin io.WriteCloser, stdout io.ReadCloser) error
}

// Resolver finds or installs the server binary. *tools.Resolver satisfies it.
type Resolver interface {
	Identity() tools.ToolIdentity
	ResolveLocal(override string) (tools.ResolvedBinary, error)
	FetchAndInstall(ctx context.Context) (tools.ResolvedBinary, error)
}

// ExitInfo describes a process that exited without being disposed.
type ExitInfo struct {
	SessionID string
	PID       int
	ExitCode  int
	Err       error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithConfig sets the configuration provider used by Restart.
func WithConfig(c ConfigProvider) Option {
	return func(s *Supervisor) { s.config = c }
}

// WithNotifier sets the sink for user-facing messages.
func WithNotifier(n notify.Sink) Option {
	return func(s *Supervisor) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithStartupGrace sets the window in which an exit counts as a launch failure.
func WithStartupGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.startupGrace = d }
}

// WithStopGrace sets how long Dispose waits before killing.
func WithStopGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.stopGrace = d }
}

// WithOnExit registers a callback for unexpected exits. It runs on the
// monitor goroutine.
func WithOnExit(fn func(ExitInfo)) Option {
	return func(s *Supervisor) { s.onExit = fn }
}

// WithExitExpected reports whether an exit happening now was requested
// through the protocol, for example after the editor sent exit. Such exits
// stop the supervisor quietly.
func WithExitExpected(fn func() bool) Option {
	return func(s *Supervisor) { s.exitExpected = fn }
}

// WithEnv appends environment variables for the server process.
func WithEnv(env ...string) Option {
	return func(s *Supervisor) { s.env = append(s.env, env...) }
}

// WithDir sets the server's working directory.
func WithDir(dir string) Option {
	return func(s *Supervisor) { s.dir = dir }
}

type process struct {
	cmd      *exec.Cmd
	session  string
	binary   tools.ResolvedBinary
	done     chan struct{}
	waitErr  error
	stopping bool
}

// Supervisor runs at most one server process at a time.
type Supervisor struct {
	resolver     Resolver
	client       ProtocolClient
	config       ConfigProvider
	notifier     notify.Sink
	log          *zap.Logger
	startupGrace time.Duration
	stopGrace    time.Duration
	onExit       func(ExitInfo)
	exitExpected func() bool
	env          []string
	dir          string

	// opMu serializes lifecycle operations.
	opMu sync.Mutex

	// mu guards state shared with the monitor goroutine.
	mu    sync.Mutex
	state State
	proc  *process
}

// New creates a supervisor. client may be nil, in which case the server's
// stdio is discarded.
func New(resolver Resolver, client ProtocolClient, opts ...Option) *Supervisor {
	s := &Supervisor{
		resolver:     resolver,
		client:       client,
		notifier:     notify.Discard{},
		log:          zap.NewNop(),
		startupGrace: DefaultStartupGrace,
		stopGrace:    DefaultStopGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("supervisor").With(zap.String("tool", resolver.Identity().Name))
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the running process id, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil || s.proc.cmd.Process == nil {
		return 0
	}
	return s.proc.cmd.Process.Pid
}

// SessionID identifies the current launch, or "" when stopped.
func (s *Supervisor) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return ""
	}
	return s.proc.session
}

// Binary returns the binary of the current launch.
func (s *Supervisor) Binary() (tools.ResolvedBinary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return tools.ResolvedBinary{}, false
	}
	return s.proc.binary, true
}

// EnsureRunning starts the server unless it is already running. When no
// binary is available locally it is downloaded only if allowDownload is set.
func (s *Supervisor) EnsureRunning(ctx context.Context, allowDownload bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.ensureRunning(ctx, allowDownload, false)
}

// Start launches bin, stopping any previous process first.
func (s *Supervisor) Start(ctx context.Context, bin tools.ResolvedBinary) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.start(ctx, bin)
}

// Restart disposes the current process and starts a fresh one using the
// current configuration.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.dispose(); err != nil {
		return err
	}
	allow := true
	if s.config != nil {
		allow = s.config.DownloadAllowed()
	}
	s.log.Info("restarting language server", zap.Bool("download_allowed", allow))
	return s.ensureRunning(ctx, allow, true)
}

// Dispose stops the process if one is running. It is safe to call repeatedly.
func (s *Supervisor) Dispose() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.dispose()
}

// Wait blocks until the current process exits or ctx ends. Without a
// process it fails with a NotRunning error.
func (s *Supervisor) Wait(ctx context.Context) (ExitInfo, error) {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()
	if p == nil {
		return ExitInfo{}, apperrors.New(apperrors.KindNotRunning, "language server not running")
	}
	select {
	case <-p.done:
		return exitInfo(p), nil
	case <-ctx.Done():
		return ExitInfo{}, ctx.Err()
	}
}

func (s *Supervisor) ensureRunning(ctx context.Context, allowDownload, restarting bool) error {
	if s.State() == StateRunning {
		return nil
	}

	override := ""
	if s.config != nil {
		override = s.config.OverridePath()
	}

	bin, err := s.resolver.ResolveLocal(override)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.notifier.Error(err.Error())
			return err
		}
		if !allowDownload {
			s.log.Info("no language server found and downloads are disabled")
			if restarting {
				s.notifier.Error(MsgRestartFailed)
			} else {
				s.notifier.Error(MsgNotFound)
			}
			return err
		}

		bin, err = s.resolver.FetchAndInstall(ctx)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUnsupportedPlatform):
				s.notifier.Error(MsgUnsupported)
			case restarting:
				s.notifier.Error(MsgRestartFailed)
			default:
				s.notifier.Error(MsgDownloadFailed)
			}
			return err
		}
		s.notifier.Info(MsgDownloaded)
	}

	return s.start(ctx, bin)
}

func (s *Supervisor) start(ctx context.Context, bin tools.ResolvedBinary) error {
	if err := s.dispose(); err != nil {
		return err
	}

	id := s.resolver.Identity()
	p := &process{
		session: uuid.NewString(),
		binary:  bin,
		done:    make(chan struct{}),
	}
	log := s.log.With(zap.String("session", p.session), zap.String("path", bin.Path))

	s.mu.Lock()
	s.state = StateStarting
	s.mu.Unlock()

	cmd := exec.Command(bin.Path, id.Args...)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Dir = s.dir

	stdin, stdout, stderr, err := pipes(cmd)
	if err != nil {
		return s.launchFailed(apperrors.Wrap(apperrors.KindLaunch, "create stdio pipes", err))
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return s.launchFailed(apperrors.Wrap(apperrors.KindLaunch, fmt.Sprintf("start %s", bin.Path), err))
	}
	p.cmd = cmd

	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()

	log.Info("language server process started", zap.Int("pid", cmd.Process.Pid), zap.String("source", string(bin.Source)))
	go s.drainStderr(log, stderr)
	go s.monitor(p)

	if err := s.awaitStartup(ctx, p); err != nil {
		return s.launchFailed(err)
	}

	if s.client != nil {
		label := fmt.Sprintf("%s [%s]", id.Name, p.session[:8])
		if err := s.client.Attach(label, stdin, stdout); err != nil {
			_ = s.dispose()
			return s.launchFailed(apperrors.Wrap(apperrors.KindLaunch, "attach protocol client", err))
		}
	} else {
		go func() { _, _ = io.Copy(io.Discard, stdout) }()
	}
	return nil
}

// awaitStartup waits out the startup window and promotes p to running.
func (s *Supervisor) awaitStartup(ctx context.Context, p *process) error {
	timer := time.NewTimer(s.startupGrace)
	defer timer.Stop()

	select {
	case <-p.done:
		return s.earlyExit(p)
	case <-ctx.Done():
		_ = s.dispose()
		return apperrors.Wrap(apperrors.KindLaunch, "startup cancelled", ctx.Err())
	case <-timer.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-p.done:
		if s.proc == p {
			s.proc = nil
		}
		return exitError(p)
	default:
	}
	if s.proc != p {
		return apperrors.New(apperrors.KindLaunch, "process replaced during startup")
	}
	s.state = StateRunning
	return nil
}

func (s *Supervisor) earlyExit(p *process) error {
	s.mu.Lock()
	if s.proc == p {
		s.proc = nil
	}
	s.mu.Unlock()
	return exitError(p)
}

// exitInfo must only be called once p.done is closed.
func exitInfo(p *process) ExitInfo {
	info := ExitInfo{SessionID: p.session, PID: p.cmd.Process.Pid, ExitCode: -1, Err: p.waitErr}
	if p.cmd.ProcessState != nil {
		info.ExitCode = p.cmd.ProcessState.ExitCode()
	}
	return info
}

func exitError(p *process) error {
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	return apperrors.Wrap(apperrors.KindLaunch, fmt.Sprintf("process exited during startup with code %d", code), p.waitErr)
}

func (s *Supervisor) launchFailed(err error) error {
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.log.Error("language server failed to launch", zap.Error(err))
	s.notifier.Error(fmt.Sprintf(msgLaunchFailedFmt, err))
	return err
}

func (s *Supervisor) monitor(p *process) {
	p.waitErr = p.cmd.Wait()
	close(p.done)

	s.mu.Lock()
	if s.proc != p {
		s.mu.Unlock()
		return
	}
	expected := p.stopping
	wasRunning := s.state == StateRunning
	s.proc = nil
	s.state = StateStopped
	s.mu.Unlock()

	if expected || !wasRunning {
		return
	}
	if s.exitExpected != nil && s.exitExpected() {
		s.log.Info("language server exited on request", zap.Int("pid", p.cmd.Process.Pid))
		return
	}

	info := exitInfo(p)
	s.log.Warn("language server exited unexpectedly", zap.Int("pid", info.PID), zap.Int("exit_code", info.ExitCode), zap.Error(p.waitErr))
	s.notifier.Error(MsgUnexpectedExit)
	if s.onExit != nil {
		s.onExit(info)
	}
}

func (s *Supervisor) dispose() error {
	s.mu.Lock()
	p := s.proc
	if p == nil {
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	}
	p.stopping = true
	s.mu.Unlock()

	err := s.terminate(p)

	s.mu.Lock()
	if s.proc == p {
		s.proc = nil
	}
	s.state = StateStopped
	s.mu.Unlock()
	return err
}

func (s *Supervisor) terminate(p *process) error {
	pid := p.cmd.Process.Pid
	if err := signalTerminate(p.cmd.Process, p.done); err != nil {
		s.log.Debug("terminate signal failed", zap.Int("pid", pid), zap.Error(err))
	}

	timer := time.NewTimer(s.stopGrace)
	defer timer.Stop()
	select {
	case <-p.done:
		s.log.Info("language server stopped", zap.Int("pid", pid))
		return nil
	case <-timer.C:
	}

	s.log.Warn("language server ignored terminate; killing", zap.Int("pid", pid))
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return apperrors.Wrap(apperrors.KindLaunch, fmt.Sprintf("kill process %d", pid), err)
	}
	<-p.done
	return nil
}

func (s *Supervisor) drainStderr(log *zap.Logger, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		log.Debug("server stderr", zap.String("line", scanner.Text()))
	}
}

func pipes(cmd *exec.Cmd) (io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	return stdin, stdout, stderr, nil
}
