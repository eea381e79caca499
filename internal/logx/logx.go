package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where log output goes.
type Options struct {
	Debug bool
	// Console receives human-readable output. Defaults to stderr because
	// stdout may carry protocol traffic.
	Console io.Writer
	// LogsDir, when set, receives a timestamped JSON log file.
	LogsDir string
}

// New creates a zap logger writing to the console and, optionally, to a
// timestamped file inside opts.LogsDir. The returned closer releases the file.
func New(opts Options) (*zap.Logger, io.Closer, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	consoleEncoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:    "msg",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalColorLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	})
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(console)), level),
	}

	var closer io.Closer = nopCloser{}
	if opts.LogsDir != "" {
		file, err := openLogFile(opts.LogsDir)
		if err != nil {
			return nil, nil, err
		}
		fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		// File output is always at debug level.
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.Lock(file), zapcore.DebugLevel))
		closer = file
	}

	zapOpts := []zap.Option{zap.AddCaller()}
	if opts.Debug {
		zapOpts = append(zapOpts, zap.AddStacktrace(zapcore.ErrorLevel), zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), zapOpts...), closer, nil
}

func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := time.Now().Format("20060102-150405") + ".log"
	file, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
