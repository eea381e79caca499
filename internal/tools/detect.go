package tools

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	apperrors "lsphost/internal/errors"
)

// ResolveLocal finds a usable binary without touching the network. A
// non-empty override wins unconditionally, then the cache, then PATH.
func (r *Resolver) ResolveLocal(override string) (ResolvedBinary, error) {
	if override != "" {
		r.log.Debug("using configured language server path", zap.String("path", override))
		return ResolvedBinary{Path: override, Source: SourceOverride}, nil
	}

	if bin, ok := r.locateCache(); ok {
		return bin, nil
	}

	if bin, ok := r.locateSystem(); ok {
		return bin, nil
	}

	err := apperrors.Newf(apperrors.KindNotFound, "%s not found in cache or PATH", r.identity.Name)
	if r.SupportsSystem() {
		return ResolvedBinary{}, err.WithSuggestion(fmt.Sprintf("run 'lsphost tools install %s' or enable download_language_server", r.identity.Name))
	}
	if r.identity.SetupURL != "" {
		return ResolvedBinary{}, err.WithSuggestion("install it manually: " + r.identity.SetupURL)
	}
	return ResolvedBinary{}, err
}

// ResolveCached returns the installed binary if the cache holds one.
func (r *Resolver) ResolveCached() (ResolvedBinary, error) {
	if bin, ok := r.locateCache(); ok {
		return bin, nil
	}
	return ResolvedBinary{}, apperrors.Newf(apperrors.KindNotFound, "%s is not installed in %s", r.identity.Name, r.ToolDir())
}

func (r *Resolver) locateCache() (ResolvedBinary, bool) {
	path := r.BinaryPath()
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return ResolvedBinary{}, false
	}
	return ResolvedBinary{Path: path, Source: SourceCache}, true
}

func (r *Resolver) locateSystem() (ResolvedBinary, bool) {
	path, err := r.lookPath(r.identity.Name)
	if err != nil || path == "" {
		return ResolvedBinary{}, false
	}
	return ResolvedBinary{Path: path, Source: SourceSystem}, true
}
