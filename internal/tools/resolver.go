package tools

import (
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"lsphost/internal/config"
	apperrors "lsphost/internal/errors"
)

// DefaultMaxRedirects bounds how many redirects a download follows.
const DefaultMaxRedirects = 10

// Resolver locates, downloads, verifies and caches one tool.
type Resolver struct {
	identity     ToolIdentity
	cacheRoot    string
	goos         string
	goarch       string
	client       *http.Client
	lookPath     func(string) (string, error)
	tempDir      string
	maxRedirects int
	log          *zap.Logger
	observer     Observer
	now          func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPlatform overrides the detected operating system and architecture.
func WithPlatform(goos, goarch string) Option {
	return func(r *Resolver) {
		r.goos = goos
		r.goarch = goarch
	}
}

// WithHTTPClient sets the client used for downloads. Its redirect policy is
// replaced; redirects are always followed manually.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithLookPath replaces the system executable search.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.lookPath = fn
		}
	}
}

// WithTempDir sets where archives are downloaded before verification.
func WithTempDir(dir string) Option {
	return func(r *Resolver) { r.tempDir = dir }
}

// WithMaxRedirects changes the redirect bound.
func WithMaxRedirects(n int) Option {
	return func(r *Resolver) {
		if n >= 0 {
			r.maxRedirects = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// NewResolver creates a resolver for identity that caches under cacheRoot.
func NewResolver(identity ToolIdentity, cacheRoot string, opts ...Option) *Resolver {
	r := &Resolver{
		identity:     identity,
		cacheRoot:    cacheRoot,
		goos:         runtime.GOOS,
		goarch:       runtime.GOARCH,
		client:       http.DefaultClient,
		lookPath:     exec.LookPath,
		tempDir:      os.TempDir(),
		maxRedirects: DefaultMaxRedirects,
		log:          zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("tools").With(zap.String("tool", identity.Name))
	return r
}

// Identity returns the tool this resolver manages.
func (r *Resolver) Identity() ToolIdentity { return r.identity }

// CacheRoot returns the root of the installation cache.
func (r *Resolver) CacheRoot() string { return r.cacheRoot }

// Platform returns the "<goos>-<goarch>" key this resolver targets.
func (r *Resolver) Platform() string { return PlatformKey(r.goos, r.goarch) }

// ToolDir is the cache directory owned by the tool.
func (r *Resolver) ToolDir() string {
	return filepath.Join(r.cacheRoot, r.identity.Name)
}

// checkToolDir refuses names whose directory would not be a direct child of
// the cache root. Installs remove the tool directory, so this must hold first.
func (r *Resolver) checkToolDir() error {
	if err := config.CheckToolName(r.identity.Name); err != nil {
		return err
	}
	rel, err := filepath.Rel(filepath.Clean(r.cacheRoot), r.ToolDir())
	if err != nil || rel != r.identity.Name {
		return apperrors.Newf(apperrors.KindConfig, "tool directory for %q escapes the cache root", r.identity.Name)
	}
	return nil
}

// BinaryPath is where an installed binary lives.
func (r *Resolver) BinaryPath() string {
	return filepath.Join(r.ToolDir(), ExecutableName(r.goos, r.identity.Name))
}

// SupportsSystem reports whether the target platform has a verified artifact.
func (r *Resolver) SupportsSystem() bool {
	return r.identity.SupportsSystem(r.goos, r.goarch)
}

// ArtifactFor returns the descriptor for the target platform.
func (r *Resolver) ArtifactFor() (Descriptor, bool) {
	return r.identity.ArtifactFor(r.goos, r.goarch)
}

func (r *Resolver) emit(ev Event) {
	if r.observer == nil {
		return
	}
	ev.Tool = r.identity.Name
	r.observer(ev)
}
