package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	apperrors "lsphost/internal/errors"
	"lsphost/internal/tools"
	"lsphost/internal/tui"
)

const installTimeout = 10 * time.Minute

var (
	installForce      bool
	installNoProgress bool
	resolveDownload   bool
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage language server binaries",
	}

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsInstallCmd())
	cmd.AddCommand(newToolsResolveCmd())
	cmd.AddCommand(newToolsPathCmd())

	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known tools and where they resolve from",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	var statuses []tools.Status
	for _, name := range e.catalog.Names() {
		r, err := e.resolverFor(name)
		if err != nil {
			return err
		}
		statuses = append(statuses, r.Status(e.overrideFor(name)))
	}

	if outputJSON {
		return writeJSON(cmd, statuses)
	}
	printStatusTable(cmd, statuses)
	return nil
}

func newToolsInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [tool|all]",
		Short: "Download and verify pinned tool releases",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runToolsInstall,
	}

	cmd.Flags().BoolVar(&installForce, "force", false, "Reinstall even if a cached copy exists")
	cmd.Flags().BoolVar(&installNoProgress, "no-progress", false, "Disable the interactive progress table")

	return cmd
}

func runToolsInstall(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	names, err := installTargets(e, args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), installTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	mode := tui.DetectMode(out, installNoProgress, outputJSON)

	var (
		statuses []tools.Status
		errs     []error
	)
	work := func(ctx context.Context, observer tools.Observer) error {
		for _, name := range names {
			status, err := installOne(ctx, e, name, observer)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			statuses = append(statuses, status)
		}
		return nil
	}

	switch mode {
	case tui.ModeTUI:
		ids := make([]tools.ToolIdentity, 0, len(names))
		for _, name := range names {
			id, _ := e.catalog.Lookup(name)
			ids = append(ids, id)
		}
		model := tui.NewInstallModel("Installing language servers", ids)
		if err := tui.RunInstall(ctx, out, model, work); err != nil {
			return err
		}
	case tui.ModePlain:
		_ = work(ctx, plainObserver(cmd))
	default:
		_ = work(ctx, nil)
		if err := writeJSON(cmd, statuses); err != nil {
			return err
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func installTargets(e *env, args []string) ([]string, error) {
	target := "all"
	if len(args) == 1 {
		target = args[0]
	}
	if strings.EqualFold(target, "all") {
		return e.catalog.Names(), nil
	}
	name, err := canonicalName(e, target)
	if err != nil {
		return nil, err
	}
	return []string{name}, nil
}

// installOne downloads name unless a cached copy of the pinned version
// exists and --force is not set.
func installOne(ctx context.Context, e *env, name string, observer tools.Observer) (tools.Status, error) {
	r, err := e.resolverFor(name, tools.WithObserver(observer))
	if err != nil {
		return tools.Status{Tool: name}, err
	}

	if !installForce {
		if st := r.Status(""); st.Source == tools.SourceCache && !st.Outdated {
			if observer != nil {
				observer(tools.Event{Tool: name, Phase: tools.PhaseCached, Path: st.Path})
			}
			return st, nil
		}
	}

	if _, err := r.FetchAndInstall(ctx); err != nil {
		st := r.Status("")
		st.Error = err.Error()
		return st, err
	}
	return r.Status(""), nil
}

func plainObserver(cmd *cobra.Command) tools.Observer {
	return func(ev tools.Event) {
		switch ev.Phase {
		case tools.PhaseInstalled:
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s installed at %s\n", color.GreenString("✓"), ev.Tool, ev.Path)
		case tools.PhaseCached:
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s already cached at %s\n", color.GreenString("✓"), ev.Tool, ev.Path)
		case tools.PhaseFailed:
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s failed: %v\n", color.RedString("✗"), ev.Tool, ev.Err)
		}
	}
}

func newToolsResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [tool]",
		Short: "Print the binary a tool resolves to, downloading it when allowed",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runToolsResolve,
	}
	cmd.Flags().BoolVar(&resolveDownload, "download", false, "Download when no local binary is found, regardless of config")
	return cmd
}

func runToolsResolve(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	name, err := targetOrDefault(e, args)
	if err != nil {
		return err
	}

	var status *tui.StatusWriter
	var opts []tools.Option
	if tui.DetectMode(cmd.ErrOrStderr(), false, outputJSON) == tui.ModeTUI {
		status = tui.NewStatusWriter(cmd.ErrOrStderr())
		defer status.Stop()
		opts = append(opts, tools.WithObserver(status.Observe))
	}

	r, err := e.resolverFor(name, opts...)
	if err != nil {
		return err
	}

	bin, err := r.ResolveLocal(e.overrideFor(name))
	if errors.Is(err, apperrors.ErrNotFound) && (resolveDownload || e.store.DownloadAllowed()) {
		ctx, cancel := context.WithTimeout(cmd.Context(), installTimeout)
		defer cancel()
		bin, err = r.FetchAndInstall(ctx)
	}
	if status != nil {
		status.Stop()
	}
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(cmd, bin)
	}
	fmt.Fprintln(cmd.OutOrStdout(), bin.Path)
	return nil
}

func newToolsPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path [tool]",
		Short: "Print where the cached binary for a tool lives",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			name, err := targetOrDefault(e, args)
			if err != nil {
				return err
			}
			r, err := e.resolverFor(name)
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd, map[string]string{"tool": name, "path": r.BinaryPath()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.BinaryPath())
			return nil
		},
	}
}

// targetOrDefault returns the tool named in args or the configured
// language server.
func targetOrDefault(e *env, args []string) (string, error) {
	if len(args) == 1 {
		return canonicalName(e, args[0])
	}
	return canonicalName(e, e.store.Current().LanguageServer)
}

// canonicalName matches name against the catalog case-insensitively.
func canonicalName(e *env, name string) (string, error) {
	for _, known := range e.catalog.Names() {
		if strings.EqualFold(known, name) {
			return known, nil
		}
	}
	return "", apperrors.Newf(apperrors.KindNotFound, "unknown tool %q", name).
		WithSuggestion("run 'lsphost tools list' to see known tools")
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func printStatusTable(cmd *cobra.Command, statuses []tools.Status) {
	out := cmd.OutOrStdout()
	if len(statuses) == 0 {
		fmt.Fprintln(out, "(no tools)")
		return
	}

	fmt.Fprintf(out, "%-16s %-9s %-9s %-9s %-14s %s\n", "Tool", "Version", "Installed", "Source", "Platform", "Path")
	for _, st := range statuses {
		source := string(st.Source)
		if source == "" {
			source = color.YellowString("%-9s", "missing")
		} else {
			source = fmt.Sprintf("%-9s", source)
		}
		fmt.Fprintf(out, "%-16s %-9s %-9s %s %-14s %s\n",
			st.Tool, st.Version, tui.NonEmptyOrDash(st.InstalledVersion), source, st.Platform, tui.NonEmptyOrDash(st.Path))
		if st.Outdated {
			fmt.Fprintf(out, "  %s\n", color.YellowString("cached copy is outdated; run 'lsphost tools install %s --force'", st.Tool))
		}
		if !st.Supported {
			fmt.Fprintf(out, "  no verified download for %s\n", st.Platform)
		}
		for _, note := range st.Notes {
			fmt.Fprintf(out, "  %s\n", note)
		}
	}
}
