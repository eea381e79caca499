package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"lsphost/internal/config"
	"lsphost/internal/paths"
	"lsphost/internal/tools"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, cache and language server health",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
}

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Summary string `json:"summary"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	layout, err := paths.Resolve(configPath, "")
	if err != nil {
		return err
	}

	var checks []healthCheck

	cfg, cfgErr := config.Load(layout.ConfigFile)
	checks = append(checks, checkConfig(layout.ConfigFile, cfgErr))
	if cfgErr != nil {
		// Nothing else can be checked without config.
		return writeDoctorResult(cmd, layout.ConfigFile, checks)
	}

	e, err := loadEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	checks = append(checks, checkCache(e.layout.CacheRoot))

	name, err := canonicalName(e, cfg.LanguageServer)
	if err != nil {
		checks = append(checks, healthCheck{Name: "Server", Status: "error", Summary: err.Error()})
		return writeDoctorResult(cmd, layout.ConfigFile, checks)
	}
	r, err := e.resolverFor(name)
	if err != nil {
		return err
	}
	checks = append(checks, checkServer(r.Status(e.overrideFor(name))))
	checks = append(checks, checkDownload(r.Identity(), r.Platform(), r.SupportsSystem(), cfg.DownloadAllowed()))

	return writeDoctorResult(cmd, layout.ConfigFile, checks)
}

func checkConfig(path string, cfgErr error) healthCheck {
	if cfgErr != nil {
		return healthCheck{Name: "Config", Status: "error", Summary: cfgErr.Error()}
	}
	exists, err := paths.FileExists(path)
	if err != nil {
		return healthCheck{Name: "Config", Status: "error", Summary: err.Error()}
	}
	if !exists {
		return healthCheck{Name: "Config", Status: "ok", Summary: "no file, using defaults"}
	}
	return healthCheck{Name: "Config", Status: "ok", Summary: path}
}

func checkCache(root string) healthCheck {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return healthCheck{Name: "Cache", Status: "error", Summary: err.Error()}
	}
	scratch, err := os.CreateTemp(root, ".doctor-*")
	if err != nil {
		return healthCheck{Name: "Cache", Status: "error", Summary: fmt.Sprintf("not writable: %v", err)}
	}
	scratch.Close()
	_ = os.Remove(scratch.Name())

	manifest, err := tools.LoadManifest(root)
	if err != nil {
		return healthCheck{Name: "Cache", Status: "warning", Summary: fmt.Sprintf("manifest unreadable: %v", err)}
	}
	return healthCheck{Name: "Cache", Status: "ok", Summary: fmt.Sprintf("%s (%d installed)", root, len(manifest.Entries))}
}

func checkServer(st tools.Status) healthCheck {
	if st.Path == "" {
		return healthCheck{Name: "Server", Status: "error", Summary: st.Error}
	}
	summary := fmt.Sprintf("%s from %s", st.Path, st.Source)
	if st.Outdated {
		return healthCheck{Name: "Server", Status: "warning", Summary: summary + ", outdated"}
	}
	return healthCheck{Name: "Server", Status: "ok", Summary: summary}
}

func checkDownload(id tools.ToolIdentity, platform string, supported, allowed bool) healthCheck {
	switch {
	case !supported:
		summary := "no verified release for " + platform
		if id.SetupURL != "" {
			summary += "; see " + id.SetupURL
		}
		return healthCheck{Name: "Download", Status: "warning", Summary: summary}
	case !allowed:
		return healthCheck{Name: "Download", Status: "warning", Summary: "disabled by download_language_server"}
	}
	return healthCheck{Name: "Download", Status: "ok", Summary: fmt.Sprintf("%s %s for %s", id.Name, id.Version, platform)}
}

func writeDoctorResult(cmd *cobra.Command, configFile string, checks []healthCheck) error {
	if outputJSON {
		return writeJSON(cmd, checks)
	}

	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold.Render("LSPHOST HEALTH:")+" "+configFile)

	for _, c := range checks {
		var statusStr string
		switch c.Status {
		case "ok":
			statusStr = green.Render("OK")
		case "warning":
			statusStr = yellow.Render("WARN")
		case "error":
			statusStr = red.Render("ERROR")
		}
		fmt.Fprintf(out, "  %-10s %s    %s\n", c.Name+":", statusStr, c.Summary)
	}

	return nil
}
