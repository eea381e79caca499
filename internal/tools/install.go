package tools

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "lsphost/internal/errors"
)

// FetchAndInstall downloads the platform artifact, verifies its digest and
// installs the binary into the cache. Any previous installation is removed
// first, so a failed install leaves nothing ResolveLocal would accept.
func (r *Resolver) FetchAndInstall(ctx context.Context) (bin ResolvedBinary, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	desc, ok := r.ArtifactFor()
	if !ok {
		e := apperrors.Newf(apperrors.KindUnsupportedPlatform, "%s has no release for %s", r.identity.Name, r.Platform())
		if r.identity.SetupURL != "" {
			e = e.WithSuggestion("install it manually: " + r.identity.SetupURL)
		}
		return ResolvedBinary{}, e
	}

	if err := r.checkToolDir(); err != nil {
		return ResolvedBinary{}, err
	}

	defer func() {
		if err != nil {
			r.log.Error("install failed", zap.Error(err))
			r.emit(Event{Phase: PhaseFailed, Err: err})
		}
	}()

	r.emit(Event{Phase: PhasePreparing})
	unlock, err := acquireInstallLock(ctx, r.cacheRoot, r.identity.Name, r.log)
	if err != nil {
		return ResolvedBinary{}, err
	}
	defer unlock()

	toolDir := r.ToolDir()
	if err := os.RemoveAll(toolDir); err != nil {
		return ResolvedBinary{}, apperrors.Wrap(apperrors.KindFilesystem, "remove previous installation", err)
	}
	if err := os.MkdirAll(toolDir, 0o755); err != nil {
		return ResolvedBinary{}, apperrors.Wrap(apperrors.KindFilesystem, "prepare tool directory", err)
	}

	if err := os.MkdirAll(r.tempDir, 0o755); err != nil {
		return ResolvedBinary{}, apperrors.Wrap(apperrors.KindFilesystem, "prepare temp directory", err)
	}
	tmpFile, err := os.CreateTemp(r.tempDir, r.identity.Name+"-download-*")
	if err != nil {
		return ResolvedBinary{}, apperrors.Wrap(apperrors.KindFilesystem, "create temp file", err)
	}
	tmpPath := tmpFile.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	r.log.Info("downloading language server", zap.String("url", desc.URL))
	size, err := r.download(ctx, desc.URL, tmpFile)
	if closeErr := tmpFile.Close(); err == nil && closeErr != nil {
		err = apperrors.Wrap(apperrors.KindFilesystem, "close temp file", closeErr)
	}
	if err != nil {
		return ResolvedBinary{}, err
	}

	r.emit(Event{Phase: PhaseVerifying, Downloaded: size, Total: size})
	sum, err := computeChecksum(tmpPath)
	if err != nil {
		return ResolvedBinary{}, apperrors.Wrap(apperrors.KindFilesystem, "hash download", err)
	}
	if !strings.EqualFold(sum, desc.SHA256) {
		return ResolvedBinary{}, &apperrors.HashMismatchError{URL: desc.URL, Expected: desc.SHA256, Actual: sum}
	}

	r.emit(Event{Phase: PhaseExtracting})
	binPath, err := r.stageAndSwap(ctx, detectArchiveFormat(desc.FileName), tmpPath)
	if err != nil {
		return ResolvedBinary{}, err
	}

	entry := ManifestEntry{
		Tool:        r.identity.Name,
		Version:     r.identity.Version,
		Source:      SourceInstalled,
		Path:        binPath,
		URL:         desc.URL,
		Checksum:    sum,
		InstalledAt: r.now().UTC().Format(time.RFC3339),
	}
	if err := recordInstall(r.cacheRoot, entry); err != nil {
		r.log.Warn("failed to update manifest", zap.Error(err))
	}

	r.log.Info("language server installed", zap.String("path", binPath), zap.String("version", r.identity.Version))
	r.emit(Event{Phase: PhaseInstalled, Downloaded: size, Total: size, Path: binPath})
	return ResolvedBinary{Path: binPath, Source: SourceInstalled}, nil
}

// stageAndSwap extracts the archive into a staging directory next to the tool
// directory and renames the directory holding the binary into place.
func (r *Resolver) stageAndSwap(ctx context.Context, format archiveFormat, archivePath string) (string, error) {
	staging, err := os.MkdirTemp(r.cacheRoot, "."+r.identity.Name+"-staging-")
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindFilesystem, "create staging dir", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	exe := ExecutableName(r.goos, r.identity.Name)

	var found string
	switch format {
	case archiveFormatZip, archiveFormatTarGz:
		if err := extractArchive(ctx, format, archivePath, staging); err != nil {
			return "", err
		}
		found, err = findExecutable(staging, exe)
		if err != nil {
			return "", apperrors.Wrap(apperrors.KindFilesystem, "search extracted files", err)
		}
		if found == "" {
			return "", apperrors.Newf(apperrors.KindExtraction, "binary %s not found in archive", exe)
		}
	default:
		found = filepath.Join(staging, exe)
		if err := copyFile(archivePath, found); err != nil {
			return "", apperrors.Wrap(apperrors.KindFilesystem, "copy binary", err)
		}
	}

	if r.goos != "windows" {
		if err := os.Chmod(found, 0o755); err != nil {
			return "", apperrors.Wrap(apperrors.KindFilesystem, "mark binary executable", err)
		}
	}

	// Archives that wrap everything in one top-level folder are flattened.
	source := filepath.Dir(found)
	toolDir := r.ToolDir()
	if err := os.RemoveAll(toolDir); err != nil {
		return "", apperrors.Wrap(apperrors.KindFilesystem, "clear tool directory", err)
	}
	if err := os.Rename(source, toolDir); err != nil {
		return "", apperrors.Wrap(apperrors.KindFilesystem, "commit tool directory", err)
	}
	return filepath.Join(toolDir, exe), nil
}

func extractArchive(ctx context.Context, format archiveFormat, archivePath, dest string) error {
	var err error
	switch format {
	case archiveFormatZip:
		err = extractZip(ctx, archivePath, dest)
	case archiveFormatTarGz:
		err = extractTarGz(ctx, archivePath, dest)
	default:
		return apperrors.Newf(apperrors.KindExtraction, "unsupported archive format %q", format)
	}
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.KindExtraction, "extract archive", err)
}

// safeJoin joins name onto dest and rejects entries that would escape it.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", apperrors.Newf(apperrors.KindExtraction, "archive entry %q escapes destination", name)
	}
	return target, nil
}

func extractZip(ctx context.Context, archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(dest, file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return apperrors.Wrap(apperrors.KindFilesystem, fmt.Sprintf("create dir %s", target), err)
			}
			continue
		}
		if err := writeZipEntry(file, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return apperrors.Wrap(apperrors.KindFilesystem, fmt.Sprintf("prepare file %s", target), err)
	}
	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", file.Name, err)
	}
	defer rc.Close()

	mode := file.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return apperrors.Wrap(apperrors.KindFilesystem, fmt.Sprintf("create file %s", target), err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("copy zip entry %s: %w", file.Name, err)
	}
	if err := out.Close(); err != nil {
		return apperrors.Wrap(apperrors.KindFilesystem, fmt.Sprintf("close file %s", target), err)
	}
	return nil
}

func extractTarGz(ctx context.Context, archivePath, dest string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	return untarStream(ctx, gz, dest)
}

func untarStream(ctx context.Context, r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return apperrors.Wrap(apperrors.KindFilesystem, fmt.Sprintf("create dir %s", target), err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return apperrors.Wrap(apperrors.KindFilesystem, fmt.Sprintf("prepare file %s", target), err)
			}
			mode := os.FileMode(header.Mode).Perm()
			if mode == 0 {
				mode = 0o644
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return apperrors.Wrap(apperrors.KindFilesystem, fmt.Sprintf("create file %s", target), err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("write file %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return apperrors.Wrap(apperrors.KindFilesystem, fmt.Sprintf("close file %s", target), err)
			}
		default:
			// Links and devices are not needed by language server bundles.
		}
	}
	return nil
}

func findExecutable(root, name string) (string, error) {
	var match string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == name {
			match = path
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return match, nil
}

func computeChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for checksum: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	dest, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dest.Close()

	if _, err := io.Copy(dest, source); err != nil {
		return err
	}
	return nil
}
