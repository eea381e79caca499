package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"lsphost/internal/config"
	apperrors "lsphost/internal/errors"
	"lsphost/internal/paths"
)

var initForce bool

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit lsphost configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigEditCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	cmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Open the configuration in $EDITOR",
		Args:  cobra.NoArgs,
		RunE:  runConfigEdit,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	layout, err := paths.Resolve(configPath, "")
	if err != nil {
		return err
	}

	cfg, err := config.Load(layout.ConfigFile)
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(cmd, cfg)
	}

	data, err := config.Marshal(layout.ConfigFile, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", layout.ConfigFile)
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	layout, err := paths.Resolve(configPath, "")
	if err != nil {
		return err
	}

	exists, err := paths.FileExists(layout.ConfigFile)
	if err != nil {
		return apperrors.Wrap(apperrors.KindFilesystem, "stat config", err)
	}
	if exists && !initForce {
		return apperrors.Newf(apperrors.KindConfig, "config already exists at %s", layout.ConfigFile).
			WithSuggestion("pass --force to overwrite it")
	}

	if err := config.Save(layout.ConfigFile, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", layout.ConfigFile)
	return nil
}

func runConfigEdit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	layout, err := paths.Resolve(configPath, "")
	if err != nil {
		return err
	}
	if err := ensureConfigFileExists(layout.ConfigFile); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}

	parts := splitEditorCommand(editor)
	if len(parts) == 0 {
		return fmt.Errorf("invalid EDITOR value: %q", editor)
	}
	parts = append(parts, layout.ConfigFile)

	execCmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	execCmd.Stdout = cmd.OutOrStdout()
	execCmd.Stderr = cmd.ErrOrStderr()
	execCmd.Stdin = cmd.InOrStdin()

	if err := execCmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}

	// Surface mistakes right away instead of at the next serve restart.
	if _, err := config.Load(layout.ConfigFile); err != nil {
		return err
	}
	return nil
}

func ensureConfigFileExists(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	return config.Save(path, config.Default())
}

func splitEditorCommand(value string) []string {
	// Basic splitting on whitespace; handles simple EDITOR values like "nano" or "code -w".
	return strings.Fields(strings.TrimSpace(value))
}
