package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	apperrors "lsphost/internal/errors"
)

// DefaultDebounce is how long Watch waits for writes to settle before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Store holds the current configuration and reloads it when the file changes.
// It satisfies the supervisor's configuration provider.
type Store struct {
	path     string
	log      *zap.Logger
	debounce time.Duration

	current atomic.Pointer[Config]

	callbacksMu sync.RWMutex
	callbacks   []func(prev, next Config)

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewStore wraps an already loaded configuration.
func NewStore(path string, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:     path,
		log:      logger.Named("config"),
		debounce: DefaultDebounce,
	}
	s.current.Store(&cfg)
	return s
}

// Open loads path and wraps the result in a Store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStore(path, cfg, logger), nil
}

// SetDebounce overrides the reload debounce interval.
func (s *Store) SetDebounce(d time.Duration) {
	s.debounce = d
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Current returns a snapshot of the configuration.
func (s *Store) Current() Config {
	return *s.current.Load()
}

// OverridePath returns the user-configured binary path, or "".
func (s *Store) OverridePath() string {
	return s.Current().LanguageServerPath
}

// DownloadAllowed reports whether the user consents to downloads.
func (s *Store) DownloadAllowed() bool {
	return s.Current().DownloadAllowed()
}

// OnChange registers fn to run after every reload that changes the value.
func (s *Store) OnChange(fn func(prev, next Config)) {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Reload re-reads the file. A missing file keeps the current value.
func (s *Store) Reload() error {
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			s.log.Debug("config file missing; keeping current config", zap.String("path", s.path))
			return nil
		}
		return apperrors.Wrap(apperrors.KindConfig, "stat config", err)
	}

	next, err := Load(s.path)
	if err != nil {
		return err
	}
	prev := s.Current()
	s.current.Store(&next)
	if reflect.DeepEqual(prev, next) {
		return nil
	}
	s.log.Info("configuration reloaded", zap.String("path", s.path))
	s.notify(prev, next)
	return nil
}

// Watch reloads the configuration whenever its file is written, created or
// replaced. Watching stops when ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.Wrap(apperrors.KindConfig, "create file watcher", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return apperrors.Wrap(apperrors.KindFilesystem, "create config directory", err)
	}
	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return apperrors.Wrap(apperrors.KindConfig, "watch config directory", err)
	}

	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	defer s.stopTimer()

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				s.scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (s *Store) scheduleReload() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Reload(); err != nil {
			s.log.Warn("failed to reload config; keeping current", zap.Error(err))
		}
	})
}

func (s *Store) stopTimer() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Store) notify(prev, next Config) {
	s.callbacksMu.RLock()
	callbacks := make([]func(prev, next Config), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.callbacksMu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("config change callback panic", zap.Any("panic", r))
				}
			}()
			cb(prev, next)
		}()
	}
}
