package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// CacheDirEnv overrides the tool cache root when set.
const CacheDirEnv = "LSPHOST_CACHE_DIR"

// Layout captures canonical locations used by lsphost.
type Layout struct {
	ConfigFile string
	CacheRoot  string
	LogsDir    string
}

// Resolve determines the layout using the optional --config flag and the
// optional cache_dir from configuration. Empty values fall back to per-user
// defaults.
func Resolve(configFlag, cacheDir string) (Layout, error) {
	configFile := configFlag
	if configFile == "" {
		dir, err := ConfigDir()
		if err != nil {
			return Layout{}, err
		}
		configFile = filepath.Join(dir, "config.yaml")
	}
	configFile, err := filepath.Abs(configFile)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve config path: %w", err)
	}

	cacheRoot, err := CacheRoot(cacheDir)
	if err != nil {
		return Layout{}, err
	}

	return Layout{
		ConfigFile: configFile,
		CacheRoot:  cacheRoot,
		LogsDir:    filepath.Join(filepath.Dir(cacheRoot), "logs"),
	}, nil
}

// ConfigDir returns the per-user configuration directory for lsphost.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("detect user config dir: %w", err)
	}
	return filepath.Join(base, "lsphost"), nil
}

// CacheRoot determines the per-user directory holding installed tools.
// Precedence: LSPHOST_CACHE_DIR, the configured value, then the platform default.
func CacheRoot(configured string) (string, error) {
	if override, ok := os.LookupEnv(CacheDirEnv); ok && override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", CacheDirEnv, err)
		}
		return abs, nil
	}
	if configured != "" {
		abs, err := filepath.Abs(configured)
		if err != nil {
			return "", fmt.Errorf("resolve cache_dir: %w", err)
		}
		return abs, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "lsphost", "servers"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "lsphost", "servers"), nil
		}
		return filepath.Join(home, "AppData", "Local", "lsphost", "servers"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "lsphost", "servers"), nil
		}
		return filepath.Join(home, ".local", "share", "lsphost", "servers"), nil
	}
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
