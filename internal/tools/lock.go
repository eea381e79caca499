package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "lsphost/internal/errors"
)

// staleLockAge bounds how long a lock held by a live PID is honoured; past
// it the PID is assumed to have been recycled.
const staleLockAge = 15 * time.Minute

const lockPollInterval = 100 * time.Millisecond

// acquireInstallLock serialises installs of one tool across processes. The
// lock file holds the owner's PID and is broken once that process is gone.
func acquireInstallLock(ctx context.Context, root, tool string, log *zap.Logger) (func(), error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.KindFilesystem, "prepare cache root", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	lockPath := filepath.Join(root, fmt.Sprintf("%s.lock", tool))
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := tryLock(root, lockPath)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindFilesystem, "acquire install lock", err)
		}
		if ok {
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if reason, stale := lockIsStale(lockPath, time.Now()); stale {
			if breakLock(lockPath) {
				log.Warn("removed stale install lock", zap.String("path", lockPath), zap.String("reason", reason))
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.KindFilesystem, "acquire install lock", ctx.Err())
		case <-ticker.C:
		}
	}
}

// tryLock publishes a fully written lock file with a hard link, so other
// processes never observe an empty lock of ours.
func tryLock(root, lockPath string) (bool, error) {
	tmp, err := os.CreateTemp(root, ".lock-*")
	if err != nil {
		return false, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	_, writeErr := fmt.Fprintf(tmp, "%d\n", os.Getpid())
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return false, writeErr
	}

	if err := os.Link(tmp.Name(), lockPath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// lockIsStale reports whether the lock at path may be broken and why.
func lockIsStale(path string, now time.Time) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		// Released between our attempt and this check; retry immediately.
		return "released", errors.Is(err, os.ErrNotExist)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return "unreadable owner", true
	}
	if !processAlive(pid) {
		return fmt.Sprintf("owner %d exited", pid), true
	}
	if now.Sub(info.ModTime()) > staleLockAge {
		return fmt.Sprintf("held for more than %s", staleLockAge), true
	}
	return "", false
}

// breakLock moves the lock aside before deleting it. If another process
// replaced it in the meantime the fresh lock is put back.
func breakLock(path string) bool {
	before, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	aside := path + ".stale-" + uuid.NewString()
	if err := os.Rename(path, aside); err != nil {
		return false
	}
	after, err := os.ReadFile(aside)
	if err == nil && string(after) != string(before) {
		_ = os.Link(aside, path)
		_ = os.Remove(aside)
		return false
	}
	_ = os.Remove(aside)
	return true
}
