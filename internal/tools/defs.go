package tools

import (
	"sort"
	"strings"
	"sync"

	"lsphost/internal/config"
)

// SwiftMesonLSP is the built-in language server for Meson build files.
var SwiftMesonLSP = ToolIdentity{
	Name:     "Swift-MesonLSP",
	Version:  "2.1",
	RepoURL:  "https://github.com/JCWasmx86/Swift-MesonLSP",
	Args:     []string{"--lsp"},
	SetupURL: "https://github.com/JCWasmx86/Swift-MesonLSP/tree/main/Docs",
	Artifacts: map[string]Artifact{
		"windows-amd64": {
			Name:   "Swift-MesonLSP-win64.zip",
			SHA256: "093ab6be0f78c255454ad0e14151db61f4e515be7e0c2315373359ea05439471",
		},
		"darwin-amd64": {
			Name:   "Swift-MesonLSP-macos12.zip",
			SHA256: "5642fdcc6205f18f83b140fb6b03fc8eb5f6e3513e04e4545ad4882bc34438ad",
		},
	},
}

// ExecutableName returns the on-disk name of base for goos.
func ExecutableName(goos, base string) string {
	if goos == "windows" && !strings.HasSuffix(strings.ToLower(base), ".exe") {
		return base + ".exe"
	}
	return base
}

// PlatformKey builds the artifact table key for a platform.
func PlatformKey(goos, goarch string) string {
	return goos + "-" + goarch
}

// Catalog is the table of known tool identities.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]ToolIdentity
}

// DefaultCatalog returns a catalog holding the built-in tools.
func DefaultCatalog() *Catalog {
	c := &Catalog{tools: map[string]ToolIdentity{}}
	c.Add(SwiftMesonLSP)
	return c
}

// Add inserts or replaces an identity.
func (c *Catalog) Add(id ToolIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[id.Name] = id
}

// Lookup returns the identity for name.
func (c *Catalog) Lookup(name string) (ToolIdentity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.tools[name]
	return id, ok
}

// Names returns the sorted tool names.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge adds every tool declared in configuration, replacing built-ins with
// the same name.
func (c *Catalog) Merge(cfgs []config.ToolConfig) {
	for _, tc := range cfgs {
		c.Add(IdentityFromConfig(tc))
	}
}

// IdentityFromConfig converts a configured tool into an identity.
func IdentityFromConfig(tc config.ToolConfig) ToolIdentity {
	id := ToolIdentity{
		Name:     tc.Name,
		Version:  strings.TrimPrefix(tc.Version, "v"),
		RepoURL:  strings.TrimSuffix(tc.RepoURL, "/"),
		Args:     append([]string(nil), tc.Args...),
		SetupURL: tc.SetupURL,
	}
	if len(tc.Artifacts) > 0 {
		id.Artifacts = make(map[string]Artifact, len(tc.Artifacts))
		for platform, a := range tc.Artifacts {
			id.Artifacts[platform] = Artifact{Name: a.Name, SHA256: strings.ToLower(a.SHA256)}
		}
	}
	return id
}
