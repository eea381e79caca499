package tools

import "fmt"

// setupHints explains how to get the tool when no verified artifact exists
// for the platform.
func setupHints(id ToolIdentity, goos string) []string {
	var hints []string
	if id.SetupURL != "" {
		hints = append(hints, fmt.Sprintf("Follow the setup guide: %s", id.SetupURL))
	}

	switch goos {
	case "darwin":
		hints = append(hints, fmt.Sprintf("Build %s from source or install it with your package manager, then put it on PATH", id.Name))
	case "linux":
		hints = append(hints, fmt.Sprintf("Install %s with your distro package manager or build it from source, then put it on PATH", id.Name))
	case "windows":
		hints = append(hints, fmt.Sprintf("Place %s somewhere on PATH", ExecutableName(goos, id.Name)))
	default:
		hints = append(hints, fmt.Sprintf("Install %s manually and put it on PATH", id.Name))
	}
	return append(hints, "or set language_server_path in the configuration file")
}
