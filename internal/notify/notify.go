// Package notify surfaces operator-facing messages. Sinks are fire-and-forget:
// they never return errors and must not block the caller for long.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

// Sink receives human-readable success and error messages.
type Sink interface {
	Info(msg string)
	Error(msg string)
}

// Console writes colored messages to a terminal stream.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console sink writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Info(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, color.GreenString("✓ %s", msg))
}

func (c *Console) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, color.RedString("✗ %s", msg))
}

// Logger forwards messages to a zap logger.
type Logger struct {
	log *zap.Logger
}

// NewLogger creates a sink backed by l.
func NewLogger(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{log: l.Named("notify")}
}

func (l *Logger) Info(msg string)  { l.log.Info(msg) }
func (l *Logger) Error(msg string) { l.log.Error(msg) }

// Multi fans out to several sinks.
type Multi []Sink

func (m Multi) Info(msg string) {
	for _, s := range m {
		if s != nil {
			s.Info(msg)
		}
	}
}

func (m Multi) Error(msg string) {
	for _, s := range m {
		if s != nil {
			s.Error(msg)
		}
	}
}

// Discard drops every message.
type Discard struct{}

func (Discard) Info(string)  {}
func (Discard) Error(string) {}

// Recorder keeps messages in memory; used by tests and JSON output.
type Recorder struct {
	mu     sync.Mutex
	Infos  []string
	Errors []string
}

func (r *Recorder) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Infos = append(r.Infos, msg)
}

func (r *Recorder) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, msg)
}

// Snapshot returns copies of the recorded messages.
func (r *Recorder) Snapshot() (infos, errs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Infos...), append([]string(nil), r.Errors...)
}
