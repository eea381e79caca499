package cli

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lsphost/internal/bridge"
	"lsphost/internal/config"
	apperrors "lsphost/internal/errors"
	"lsphost/internal/notify"
	"lsphost/internal/supervisor"
)

var serveNoWatch bool

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the configured language server on stdio",
		Long: `Resolve the configured language server, downloading it when allowed,
and relay Content-Length framed messages between stdin/stdout and the server.
Editing the config file restarts the server; the editor session survives.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not restart the server when the config file changes")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	name, err := canonicalName(e, e.store.Current().LanguageServer)
	if err != nil {
		return err
	}
	resolver, err := e.resolverFor(name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	b := bridge.New(cmd.InOrStdin(), cmd.OutOrStdout(), e.log)
	notifier := notify.Multi{notify.NewLogger(e.log), notify.NewConsole(cmd.ErrOrStderr())}
	sup := supervisor.New(resolver, b,
		supervisor.WithConfig(e.store),
		supervisor.WithNotifier(notifier),
		supervisor.WithLogger(e.log),
		supervisor.WithExitExpected(b.Shutdown),
		supervisor.WithOnExit(func(info supervisor.ExitInfo) {
			e.log.Warn("language server is down; edit the config or restart the editor session to bring it back",
				zap.String("session", info.SessionID), zap.Int("exit_code", info.ExitCode))
		}),
	)
	defer func() {
		if err := sup.Dispose(); err != nil {
			e.log.Warn("dispose language server", zap.Error(err))
		}
	}()

	if err := sup.EnsureRunning(ctx, e.store.DownloadAllowed()); err != nil {
		return err
	}

	if !serveNoWatch {
		e.store.OnChange(func(prev, next config.Config) {
			restartOnChange(ctx, e.log, sup, name, prev, next)
		})
		if err := e.store.Watch(ctx); err != nil {
			e.log.Warn("config watch unavailable", zap.Error(err))
		}
	}

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if b.Shutdown() {
		awaitServerExit(e.log, sup)
	}
	return nil
}

// serverExitGrace is how long a server that was told to exit gets before
// Dispose terminates it.
const serverExitGrace = 2 * time.Second

func awaitServerExit(log *zap.Logger, sup *supervisor.Supervisor) {
	ctx, cancel := context.WithTimeout(context.Background(), serverExitGrace)
	defer cancel()
	info, err := sup.Wait(ctx)
	switch {
	case err == nil:
		log.Info("language server exited after shutdown", zap.Int("exit_code", info.ExitCode))
	case errors.Is(err, apperrors.ErrNotRunning):
	default:
		log.Debug("language server still running after exit request", zap.Error(err))
	}
}

type changeAction int

const (
	changeNone changeAction = iota
	changeRestart
	// changeRelaunch covers edits the running process cannot pick up because
	// the catalog and resolver are built once per serve session.
	changeRelaunch
)

// classifyChange decides how a config edit affects the server named name.
func classifyChange(name string, prev, next config.Config) changeAction {
	if next.LanguageServer != prev.LanguageServer && next.LanguageServer != name {
		return changeRelaunch
	}
	prevTool, prevOK := toolEntry(prev, name)
	nextTool, nextOK := toolEntry(next, name)
	if prevOK != nextOK || !reflect.DeepEqual(prevTool, nextTool) {
		return changeRelaunch
	}
	if next.LanguageServerPath == prev.LanguageServerPath && next.DownloadAllowed() == prev.DownloadAllowed() {
		return changeNone
	}
	return changeRestart
}

func toolEntry(cfg config.Config, name string) (config.ToolConfig, bool) {
	for _, tool := range cfg.Tools {
		if strings.EqualFold(tool.Name, name) {
			return tool, true
		}
	}
	return config.ToolConfig{}, false
}

// restartOnChange restarts the server when a setting it depends on changed.
func restartOnChange(ctx context.Context, log *zap.Logger, sup *supervisor.Supervisor, name string, prev, next config.Config) {
	switch classifyChange(name, prev, next) {
	case changeNone:
		return
	case changeRelaunch:
		log.Warn("this configuration change takes effect after restarting lsphost",
			zap.String("running", name), zap.String("configured", next.LanguageServer))
		return
	}
	log.Info("configuration changed; restarting language server")
	go func() {
		if err := sup.Restart(ctx); err != nil {
			log.Error("restart failed", zap.Error(err))
		}
	}()
}
