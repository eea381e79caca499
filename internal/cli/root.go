package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lsphost/internal/config"
	apperrors "lsphost/internal/errors"
	"lsphost/internal/logx"
	"lsphost/internal/paths"
	"lsphost/internal/tools"
)

var (
	configPath string
	outputJSON bool
	debugLogs  bool
)

// Execute runs the root cobra command and exits with a code derived from
// the error kind.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(apperrors.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lsphost",
		Short:         "Locate, install and supervise language servers",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (.yaml or .toml)")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	cmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "Enable debug logging")

	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

func printError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	_, _ = red.Fprint(w, "error: ")
	_, _ = fmt.Fprintln(w, apperrors.FormatError(err))
}

// env is the state shared by subcommands once configuration is loaded.
type env struct {
	layout  paths.Layout
	store   *config.Store
	catalog *tools.Catalog
	log     *zap.Logger
	closer  io.Closer
}

// loadEnv reads configuration, resolves directories and builds the logger.
// fileLogs adds a JSON log file under the logs directory.
func loadEnv(cmd *cobra.Command, fileLogs bool) (*env, error) {
	layout, err := paths.Resolve(configPath, "")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, "resolve paths", err)
	}

	cfg, err := config.Load(layout.ConfigFile)
	if err != nil {
		return nil, err
	}

	if cfg.CacheDir != "" {
		layout, err = paths.Resolve(layout.ConfigFile, cfg.CacheDir)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindConfig, "resolve paths", err)
		}
	}

	opts := logx.Options{Debug: debugLogs || cfg.Debug, Console: cmd.ErrOrStderr()}
	if fileLogs {
		opts.LogsDir = layout.LogsDir
	}
	logger, closer, err := logx.New(opts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindFilesystem, "set up logging", err)
	}

	catalog := tools.DefaultCatalog()
	catalog.Merge(cfg.Tools)

	return &env{
		layout:  layout,
		store:   config.NewStore(layout.ConfigFile, cfg, logger),
		catalog: catalog,
		log:     logger,
		closer:  closer,
	}, nil
}

func (e *env) Close() {
	_ = e.log.Sync()
	_ = e.closer.Close()
}

// resolverFor builds a resolver for the named tool.
func (e *env) resolverFor(name string, opts ...tools.Option) (*tools.Resolver, error) {
	id, ok := e.catalog.Lookup(name)
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "unknown tool %q", name).
			WithSuggestion("run 'lsphost tools list' to see known tools")
	}
	opts = append([]tools.Option{tools.WithLogger(e.log)}, opts...)
	return tools.NewResolver(id, e.layout.CacheRoot, opts...), nil
}

// overrideFor returns the configured binary path when name is the
// configured language server.
func (e *env) overrideFor(name string) string {
	cfg := e.store.Current()
	if name == cfg.LanguageServer {
		return cfg.LanguageServerPath
	}
	return ""
}
