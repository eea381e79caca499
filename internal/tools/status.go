package tools

import (
	"fmt"
	"path/filepath"
)

// Status reports where the tool currently resolves from and whether the
// cached copy matches the configured version. It never downloads.
func (r *Resolver) Status(override string) Status {
	st := Status{
		Tool:      r.identity.Name,
		Version:   r.identity.Version,
		Platform:  r.Platform(),
		Supported: r.SupportsSystem(),
	}

	bin, err := r.ResolveLocal(override)
	if err != nil {
		st.Error = err.Error()
	} else {
		st.Source = bin.Source
		st.Path = bin.Path
	}

	manifest, err := LoadManifest(r.cacheRoot)
	if err != nil {
		st.Notes = append(st.Notes, fmt.Sprintf("manifest unreadable: %v", err))
	} else if entry, ok := manifest.Entries[r.identity.Name]; ok {
		st.InstalledVersion = entry.Version
		st.InstalledAt = entry.InstalledAt
		st.Checksum = entry.Checksum
		if bin.Source == SourceCache && filepath.Clean(entry.Path) != filepath.Clean(bin.Path) {
			st.Notes = append(st.Notes, "manifest path differs from cached binary")
		}
		if entry.Version != "" && entry.Version != r.identity.Version {
			st.Outdated = true
			switch compareVersions(entry.Version, r.identity.Version) {
			case -1:
				st.Notes = append(st.Notes, fmt.Sprintf("cached %s is older than %s; reinstall to update", entry.Version, r.identity.Version))
			case 1:
				st.Notes = append(st.Notes, fmt.Sprintf("cached %s is newer than configured %s", entry.Version, r.identity.Version))
			default:
				st.Notes = append(st.Notes, fmt.Sprintf("cached version %s differs from %s", entry.Version, r.identity.Version))
			}
		}
	}

	if !st.Supported {
		st.Notes = append(st.Notes, setupHints(r.identity, r.goos)...)
	}
	return st
}
