package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lsphost/internal/errors"
)

const testDigest = "093ab6be0f78c255454ad0e14151db61f4e515be7e0c2315373359ea05439471"

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, DefaultLanguageServer, cfg.LanguageServer)
	assert.True(t, cfg.DownloadAllowed())
	assert.Empty(t, cfg.LanguageServerPath)
}

func TestDownloadAllowedDefault(t *testing.T) {
	assert.True(t, Config{}.DownloadAllowed())
	assert.False(t, Config{DownloadLanguageServer: boolPtr(false)}.DownloadAllowed())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
language_server_path: /opt/mesonlsp
download_language_server: false
tools:
  - name: Tool
    version: v3.0.20
    repo_url: https://example.com/tool
    args: ["--stdio"]
    artifacts:
      linux-amd64:
        name: Tool.zip
        sha256: `+testDigest+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/mesonlsp", cfg.LanguageServerPath)
	assert.False(t, cfg.DownloadAllowed())
	assert.Equal(t, DefaultLanguageServer, cfg.LanguageServer)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, "3.0.20", cfg.Tools[0].Version)
	assert.Equal(t, []string{"--stdio"}, cfg.Tools[0].Args)
	assert.Equal(t, "Tool.zip", cfg.Tools[0].Artifacts["linux-amd64"].Name)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
language_server = "Tool"
debug = true

[[tools]]
name = "Tool"
version = "1.2.3"
repo_url = "https://example.com/tool"

[tools.artifacts.darwin-arm64]
name = "Tool-macos.zip"
sha256 = "`+testDigest+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Tool", cfg.LanguageServer)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.DownloadAllowed())
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, testDigest, cfg.Tools[0].Artifacts["darwin-arm64"].SHA256)
}

func TestLoadRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "tools: [\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConfig, apperrors.GetKind(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		tools []ToolConfig
		want  string
	}{
		{name: "missing name", tools: []ToolConfig{{Version: "1"}}, want: "name is required"},
		{name: "duplicate", tools: []ToolConfig{{Name: "a", Version: "1"}, {Name: "a", Version: "1"}}, want: "duplicate tool"},
		{name: "parent dir", tools: []ToolConfig{{Name: "../victim", Version: "1"}}, want: "path separators"},
		{name: "cache root", tools: []ToolConfig{{Name: ".", Version: "1"}}, want: "reserved"},
		{name: "missing version", tools: []ToolConfig{{Name: "a"}}, want: "version is required"},
		{
			name:  "no repo",
			tools: []ToolConfig{{Name: "a", Version: "1", Artifacts: map[string]ArtifactConfig{"linux-amd64": {Name: "a.zip"}}}},
			want:  "repo_url is required",
		},
		{
			name:  "bad platform",
			tools: []ToolConfig{{Name: "a", Version: "1", RepoURL: "u", Artifacts: map[string]ArtifactConfig{"linux": {Name: "a.zip"}}}},
			want:  "goos-goarch",
		},
		{
			name:  "bad digest",
			tools: []ToolConfig{{Name: "a", Version: "1", RepoURL: "u", Artifacts: map[string]ArtifactConfig{"linux-amd64": {Name: "a.zip", SHA256: "abc"}}}},
			want:  "malformed sha256",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Config{Tools: tt.tools}.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestCheckToolName(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "../x", "a/b", `a\b`, "/abs", "x\x00y"} {
		err := CheckToolName(bad)
		require.Error(t, err, "name %q", bad)
		assert.True(t, errors.Is(err, apperrors.ErrConfig), "name %q", bad)
	}
	for _, good := range []string{"Swift-MesonLSP", "mesonlsp", "tool.v2", "..tool"} {
		assert.NoError(t, CheckToolName(good), "name %q", good)
	}
}

func TestSaveRoundTripFormats(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			cfg.LanguageServerPath = "/usr/local/bin/mesonlsp"
			cfg.DownloadLanguageServer = boolPtr(false)

			require.NoError(t, Save(path, cfg))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.LanguageServerPath, loaded.LanguageServerPath)
			assert.False(t, loaded.DownloadAllowed())
		})
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
