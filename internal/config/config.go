package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	apperrors "lsphost/internal/errors"
)

// DefaultLanguageServer names the built-in tool used when none is configured.
const DefaultLanguageServer = "Swift-MesonLSP"

// Config captures the user's language-server settings.
type Config struct {
	Version            int    `yaml:"version" toml:"version" json:"version"`
	LanguageServer     string `yaml:"language_server" toml:"language_server" json:"language_server"`
	LanguageServerPath string `yaml:"language_server_path,omitempty" toml:"language_server_path,omitempty" json:"language_server_path,omitempty"`
	// DownloadLanguageServer is the user's consent to fetch binaries.
	// Nil means the default (allowed).
	DownloadLanguageServer *bool        `yaml:"download_language_server,omitempty" toml:"download_language_server,omitempty" json:"download_language_server,omitempty"`
	CacheDir               string       `yaml:"cache_dir,omitempty" toml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
	Debug                  bool         `yaml:"debug,omitempty" toml:"debug,omitempty" json:"debug,omitempty"`
	Tools                  []ToolConfig `yaml:"tools,omitempty" toml:"tools,omitempty" json:"tools,omitempty"`
}

// ToolConfig declares an additional or replacement tool identity.
type ToolConfig struct {
	Name      string                    `yaml:"name" toml:"name" json:"name"`
	Version   string                    `yaml:"version" toml:"version" json:"version"`
	RepoURL   string                    `yaml:"repo_url" toml:"repo_url" json:"repo_url"`
	Args      []string                  `yaml:"args,omitempty" toml:"args,omitempty" json:"args,omitempty"`
	SetupURL  string                    `yaml:"setup_url,omitempty" toml:"setup_url,omitempty" json:"setup_url,omitempty"`
	Artifacts map[string]ArtifactConfig `yaml:"artifacts,omitempty" toml:"artifacts,omitempty" json:"artifacts,omitempty"`
}

// ArtifactConfig names a release asset and its SHA-256 digest.
type ArtifactConfig struct {
	Name   string `yaml:"name" toml:"name" json:"name"`
	SHA256 string `yaml:"sha256" toml:"sha256" json:"sha256"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version:                1,
		LanguageServer:         DefaultLanguageServer,
		DownloadLanguageServer: boolPtr(true),
	}
}

// DownloadAllowed returns the effective download consent applying defaults.
func (c Config) DownloadAllowed() bool {
	if c.DownloadLanguageServer == nil {
		return true
	}
	return *c.DownloadLanguageServer
}

// Load reads the configuration from disk if it exists, otherwise returns the
// default configuration. Files ending in .toml are decoded as TOML; anything
// else is YAML.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, apperrors.Wrap(apperrors.KindConfig, "read config", err)
	}

	cfg := Default()
	if isTOML(path) {
		if _, err := toml.Decode(string(contents), &cfg); err != nil {
			return Config{}, apperrors.Wrap(apperrors.KindConfig, "decode toml config", err)
		}
	} else if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, apperrors.Wrap(apperrors.KindConfig, "unmarshal config", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills fields the file omitted.
func (c *Config) ApplyDefaults() {
	defaults := Default()
	if c.Version == 0 {
		c.Version = defaults.Version
	}
	c.LanguageServer = strings.TrimSpace(c.LanguageServer)
	if c.LanguageServer == "" {
		c.LanguageServer = defaults.LanguageServer
	}
	c.LanguageServerPath = strings.TrimSpace(c.LanguageServerPath)
	if c.DownloadLanguageServer == nil {
		c.DownloadLanguageServer = defaults.DownloadLanguageServer
	}
	for i := range c.Tools {
		c.Tools[i].Name = strings.TrimSpace(c.Tools[i].Name)
		c.Tools[i].Version = strings.TrimPrefix(strings.TrimSpace(c.Tools[i].Version), "v")
	}
}

var digestPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// CheckToolName rejects names that cannot serve as a single directory
// component under the cache root.
func CheckToolName(name string) error {
	switch {
	case name == "":
		return apperrors.New(apperrors.KindConfig, "tool name is required")
	case name == "." || name == "..":
		return apperrors.Newf(apperrors.KindConfig, "tool name %q is reserved", name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return apperrors.Newf(apperrors.KindConfig, "tool name %q must not contain path separators", name)
	case filepath.Base(name) != name || filepath.IsAbs(name) || filepath.VolumeName(name) != "":
		return apperrors.Newf(apperrors.KindConfig, "tool name %q is not a plain file name", name)
	}
	return nil
}

// Validate reports the first structural problem in the tool table.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Tools))
	for i, tool := range c.Tools {
		if tool.Name == "" {
			return apperrors.Newf(apperrors.KindConfig, "tools[%d]: name is required", i)
		}
		if err := CheckToolName(tool.Name); err != nil {
			return apperrors.Wrap(apperrors.KindConfig, fmt.Sprintf("tools[%d]", i), err)
		}
		if _, dup := seen[tool.Name]; dup {
			return apperrors.Newf(apperrors.KindConfig, "tools[%d]: duplicate tool %q", i, tool.Name)
		}
		seen[tool.Name] = struct{}{}
		if tool.Version == "" {
			return apperrors.Newf(apperrors.KindConfig, "tool %q: version is required", tool.Name)
		}
		if tool.RepoURL == "" && len(tool.Artifacts) > 0 {
			return apperrors.Newf(apperrors.KindConfig, "tool %q: repo_url is required when artifacts are listed", tool.Name)
		}
		for platform, artifact := range tool.Artifacts {
			if !strings.Contains(platform, "-") {
				return apperrors.Newf(apperrors.KindConfig, "tool %q: platform key %q must look like goos-goarch", tool.Name, platform)
			}
			if artifact.Name == "" {
				return apperrors.Newf(apperrors.KindConfig, "tool %q: artifact for %s has no name", tool.Name, platform)
			}
			if artifact.SHA256 != "" && !digestPattern.MatchString(artifact.SHA256) {
				return apperrors.Newf(apperrors.KindConfig, "tool %q: artifact for %s has a malformed sha256", tool.Name, platform)
			}
		}
	}
	return nil
}

// Marshal encodes cfg in the format implied by path.
func Marshal(path string, cfg Config) ([]byte, error) {
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, apperrors.Wrap(apperrors.KindConfig, "encode toml config", err)
		}
		return buf.Bytes(), nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, "marshal config", err)
	}
	return data, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg Config) error {
	data, err := Marshal(path, cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(apperrors.KindFilesystem, "create config directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.Wrap(apperrors.KindFilesystem, "write config", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return apperrors.Wrap(apperrors.KindFilesystem, fmt.Sprintf("replace %s", path), err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func boolPtr(v bool) *bool {
	return &v
}
