// Package bridge relays Content-Length framed messages between an editor on
// one stdio pair and a language server on another. It reads only the
// method and id envelope fields and never interprets payloads.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	apperrors "lsphost/internal/errors"
)

// maxPending bounds frames held while no server is attached.
const maxPending = 1024

// ErrBacklogFull is returned by Run when too many frames arrive while no
// server is attached.
var ErrBacklogFull = errors.New("bridge: no server attached and backlog is full")

// Bridge forwards editor traffic to the currently attached server and server
// traffic back to the editor. After a restart it replays the editor's
// initialize handshake to the new server and hides the reply.
type Bridge struct {
	editorIn  *bufio.Reader
	editorOut io.Writer
	log       *zap.Logger

	writeMu sync.Mutex
	started atomic.Bool

	mu            sync.Mutex
	server        io.WriteCloser
	label         string
	generation    int
	pending       [][]byte
	initialize    []byte
	initialized   []byte
	initForwarded bool
	swallow       map[string]struct{}
	shutdown      bool
}

// New creates a bridge between the editor streams.
func New(editorIn io.Reader, editorOut io.Writer, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		editorIn:  bufio.NewReaderSize(editorIn, 64*1024),
		editorOut: editorOut,
		log:       logger.Named("bridge"),
		swallow:   map[string]struct{}{},
	}
}

// Attach hands a freshly started server to the bridge. Earlier servers are
// forgotten; their remaining output is still relayed until it ends.
func (b *Bridge) Attach(label string, stdin io.WriteCloser, stdout io.ReadCloser) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.generation++
	gen := b.generation
	b.server = stdin
	b.label = label
	log := b.log.With(zap.String("server", label))
	go b.pumpServer(gen, log, stdout)

	if b.initForwarded && b.initialize != nil {
		replayID := fmt.Sprintf("lsphost-replay-%d", gen)
		body, err := sjson.SetBytes(b.initialize, "id", replayID)
		if err != nil {
			return fmt.Errorf("rewrite initialize id: %w", err)
		}
		b.swallow[replayID] = struct{}{}
		if err := writeFrame(stdin, body); err != nil {
			b.server = nil
			return fmt.Errorf("replay initialize: %w", err)
		}
		if b.initialized != nil {
			if err := writeFrame(stdin, b.initialized); err != nil {
				b.server = nil
				return fmt.Errorf("replay initialized: %w", err)
			}
		}
		log.Info("replayed initialize handshake", zap.String("id", replayID))
	}

	for len(b.pending) > 0 {
		if err := b.forwardLocked(b.pending[0]); err != nil {
			b.server = nil
			return fmt.Errorf("flush pending frames: %w", err)
		}
		b.pending = b.pending[1:]
	}

	log.Debug("server attached", zap.Int("generation", gen))
	return nil
}

// Run relays editor messages until the editor closes its stream, sends
// exit, or ctx is cancelled. The editor stream is consumed once, so later
// calls fail with an AlreadyRunning error.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.KindAlreadyRunning, "bridge is already relaying editor input")
	}
	frames := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		for {
			body, err := readFrame(b.editorIn)
			if err != nil {
				errc <- err
				return
			}
			select {
			case frames <- body:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			if errors.Is(err, io.EOF) {
				b.log.Debug("editor closed input")
				return nil
			}
			return err
		case body := <-frames:
			method := gjson.GetBytes(body, "method").String()
			if err := b.fromEditor(method, body); err != nil {
				return err
			}
			if method == "exit" {
				return nil
			}
		}
	}
}

// Shutdown reports whether the editor asked the server to shut down.
func (b *Bridge) Shutdown() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shutdown
}

func (b *Bridge) fromEditor(method string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch method {
	case "initialize":
		b.initialize = append([]byte(nil), body...)
	case "initialized":
		b.initialized = append([]byte(nil), body...)
	case "shutdown", "exit":
		b.shutdown = true
	}

	b.log.Debug("editor -> server",
		zap.String("method", method),
		zap.String("id", gjson.GetBytes(body, "id").Raw))

	if b.server == nil {
		return b.enqueueLocked(body)
	}
	if err := b.forwardLocked(body); err != nil {
		b.log.Warn("server write failed; buffering until restart", zap.String("server", b.label), zap.Error(err))
		b.server = nil
		return b.enqueueLocked(body)
	}
	return nil
}

func (b *Bridge) forwardLocked(body []byte) error {
	if err := writeFrame(b.server, body); err != nil {
		return err
	}
	if gjson.GetBytes(body, "method").String() == "initialize" {
		b.initForwarded = true
	}
	return nil
}

func (b *Bridge) enqueueLocked(body []byte) error {
	if len(b.pending) >= maxPending {
		return ErrBacklogFull
	}
	b.pending = append(b.pending, body)
	return nil
}

func (b *Bridge) pumpServer(gen int, log *zap.Logger, stdout io.ReadCloser) {
	defer stdout.Close()
	r := bufio.NewReaderSize(stdout, 64*1024)
	for {
		body, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("server output ended", zap.Error(err))
			}
			break
		}
		if b.swallowed(body) {
			log.Debug("dropped reply to replayed initialize")
			continue
		}
		log.Debug("server -> editor",
			zap.String("method", gjson.GetBytes(body, "method").String()),
			zap.String("id", gjson.GetBytes(body, "id").Raw))

		b.writeMu.Lock()
		err = writeFrame(b.editorOut, body)
		b.writeMu.Unlock()
		if err != nil {
			log.Warn("editor write failed", zap.Error(err))
			break
		}
	}

	b.mu.Lock()
	if b.generation == gen {
		b.server = nil
	}
	b.mu.Unlock()
}

// swallowed reports whether body answers a replayed request.
func (b *Bridge) swallowed(body []byte) bool {
	if gjson.GetBytes(body, "method").Exists() {
		return false
	}
	id := gjson.GetBytes(body, "id")
	if id.Type != gjson.String {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.swallow[id.Str]; !ok {
		return false
	}
	delete(b.swallow, id.Str)
	return true
}
