package tools

import (
	"fmt"
	"sort"
	"strings"
)

type archiveFormat string

const (
	archiveFormatNone  archiveFormat = "none"
	archiveFormatZip   archiveFormat = "zip"
	archiveFormatTarGz archiveFormat = "tar.gz"
)

// SupportsSystem reports whether a verified artifact exists for the platform.
// Entries without a digest are treated as unsupported.
func (t ToolIdentity) SupportsSystem(goos, goarch string) bool {
	a, ok := t.Artifacts[PlatformKey(goos, goarch)]
	return ok && a.Name != "" && strings.TrimSpace(a.SHA256) != ""
}

// ArtifactFor returns the download descriptor for the platform.
func (t ToolIdentity) ArtifactFor(goos, goarch string) (Descriptor, bool) {
	if !t.SupportsSystem(goos, goarch) {
		return Descriptor{}, false
	}
	a := t.Artifacts[PlatformKey(goos, goarch)]
	return Descriptor{
		URL:      t.downloadURL(a.Name),
		SHA256:   strings.ToLower(strings.TrimSpace(a.SHA256)),
		FileName: a.Name,
	}, true
}

func (t ToolIdentity) downloadURL(asset string) string {
	return fmt.Sprintf("%s/releases/download/v%s/%s", strings.TrimSuffix(t.RepoURL, "/"), t.Version, asset)
}

// Platforms lists the platform keys with a verified artifact.
func (t ToolIdentity) Platforms() []string {
	keys := make([]string, 0, len(t.Artifacts))
	for key, a := range t.Artifacts {
		if a.Name != "" && a.SHA256 != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func detectArchiveFormat(name string) archiveFormat {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return archiveFormatZip
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return archiveFormatTarGz
	default:
		return archiveFormatNone
	}
}
