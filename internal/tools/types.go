package tools

// Source records where a resolved binary came from.
type Source string

const (
	SourceUnknown   Source = ""
	SourceOverride  Source = "override"
	SourceCache     Source = "cache"
	SourceSystem    Source = "system"
	SourceInstalled Source = "installed"
)

// ToolIdentity describes a versioned external tool and its per-platform
// release artifacts. Values are treated as immutable.
type ToolIdentity struct {
	Name     string
	Version  string
	RepoURL  string
	Args     []string
	SetupURL string
	// Artifacts is keyed by "<goos>-<goarch>".
	Artifacts map[string]Artifact
}

// Artifact names a release asset and the SHA-256 digest it must match.
type Artifact struct {
	Name   string
	SHA256 string
}

// Descriptor is everything needed to download and verify one artifact.
type Descriptor struct {
	URL      string
	SHA256   string
	FileName string
}

// ResolvedBinary is a usable executable path and how it was found.
type ResolvedBinary struct {
	Path   string `json:"path"`
	Source Source `json:"source"`
}

// Status captures the resolved state for a tool.
type Status struct {
	Tool             string   `json:"tool"`
	Version          string   `json:"version"`
	InstalledVersion string   `json:"installed_version,omitempty"`
	Platform         string   `json:"platform"`
	Supported        bool     `json:"supported"`
	Source           Source   `json:"source"`
	Path             string   `json:"path,omitempty"`
	InstalledAt      string   `json:"installed_at,omitempty"`
	Checksum         string   `json:"checksum,omitempty"`
	Outdated         bool     `json:"outdated"`
	Error            string   `json:"error,omitempty"`
	Notes            []string `json:"notes,omitempty"`
}

// ManifestEntry records an installed tool in the cache manifest.
type ManifestEntry struct {
	Tool        string `json:"tool"`
	Version     string `json:"version"`
	Source      Source `json:"source"`
	Path        string `json:"path"`
	URL         string `json:"url,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
	InstalledAt string `json:"installed_at,omitempty"`
}

// Manifest wraps persisted entries for quick lookup.
type Manifest struct {
	Entries map[string]ManifestEntry `json:"entries"`
}

// Phase identifies a step of FetchAndInstall.
type Phase string

const (
	PhasePreparing   Phase = "preparing"
	PhaseDownloading Phase = "downloading"
	PhaseVerifying   Phase = "verifying"
	PhaseExtracting  Phase = "extracting"
	PhaseInstalled   Phase = "installed"
	PhaseFailed      Phase = "failed"
	// PhaseCached reports an install skipped because the pinned version is
	// already in the cache.
	PhaseCached Phase = "cached"
)

// Event reports install progress. Total is -1 when the server did not send a
// content length.
type Event struct {
	Tool       string
	Phase      Phase
	Downloaded int64
	Total      int64
	Path       string
	Err        error
}

// Observer receives install events. It is called synchronously and must not block.
type Observer func(Event)
