package bridge

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	apperrors "lsphost/internal/errors"
)

type fakeServer struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	in      *bufio.Reader
}

func newFakeServer() *fakeServer {
	s := &fakeServer{}
	s.stdinR, s.stdinW = io.Pipe()
	s.stdoutR, s.stdoutW = io.Pipe()
	s.in = bufio.NewReader(s.stdinR)
	return s
}

func (s *fakeServer) close() {
	s.stdinR.Close()
	s.stdoutW.Close()
}

type harness struct {
	bridge    *Bridge
	editorIn  *io.PipeWriter
	editorOut *bufio.Reader
	cancel    context.CancelFunc
	done      chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		bridge:    New(inR, outW, nil),
		editorIn:  inW,
		editorOut: bufio.NewReader(outR),
		cancel:    cancel,
		done:      make(chan error, 1),
	}
	go func() { h.done <- h.bridge.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		inW.Close()
		outR.Close()
	})
	return h
}

func send(t *testing.T, w io.Writer, body string) {
	t.Helper()
	require.NoError(t, writeFrame(w, []byte(body)))
}

func receive(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	type result struct {
		body []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		body, err := readFrame(r)
		ch <- result{body, err}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return string(res.body)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}

func attach(t *testing.T, b *Bridge, label string, s *fakeServer) chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- b.Attach(label, s.stdinW, s.stdoutR) }()
	return errc
}

const (
	initializeReq = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"rootUri":"file:///proj"}}`
	initializedNt = `{"jsonrpc":"2.0","method":"initialized","params":{}}`
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte(`{"a":1}`)))
	assert.Equal(t, "Content-Length: 7\r\n\r\n{\"a\":1}", buf.String())

	body, err := readFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))

	_, err = readFrame(bufio.NewReader(&buf))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameHeaders(t *testing.T) {
	body, err := readFrame(bufio.NewReader(strings.NewReader(
		"content-length: 2\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n{}")))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))

	_, err = readFrame(bufio.NewReader(strings.NewReader("Content-Type: x\r\n\r\n{}")))
	assert.ErrorContains(t, err, "missing Content-Length")

	_, err = readFrame(bufio.NewReader(strings.NewReader("Content-Length: nope\r\n\r\n")))
	assert.ErrorContains(t, err, "invalid Content-Length")

	_, err = readFrame(bufio.NewReader(strings.NewReader("Content-Length: 10\r\n\r\n{}")))
	assert.Error(t, err)
}

func TestBridgeForwardsBothWays(t *testing.T) {
	h := newHarness(t)
	srv := newFakeServer()
	defer srv.close()
	require.NoError(t, <-attach(t, h.bridge, "one", srv))

	send(t, h.editorIn, initializeReq)
	assert.Equal(t, initializeReq, receive(t, srv.in))

	reply := `{"jsonrpc":"2.0","id":1,"result":{"capabilities":{}}}`
	send(t, srv.stdoutW, reply)
	assert.Equal(t, reply, receive(t, h.editorOut))
}

func TestBridgeBuffersUntilAttached(t *testing.T) {
	h := newHarness(t)

	send(t, h.editorIn, initializeReq)
	send(t, h.editorIn, initializedNt)

	srv := newFakeServer()
	defer srv.close()
	errc := attach(t, h.bridge, "late", srv)

	assert.Equal(t, initializeReq, receive(t, srv.in))
	assert.Equal(t, initializedNt, receive(t, srv.in))
	require.NoError(t, <-errc)
}

func TestBridgeReplaysHandshakeAfterRestart(t *testing.T) {
	h := newHarness(t)

	first := newFakeServer()
	require.NoError(t, <-attach(t, h.bridge, "first", first))
	send(t, h.editorIn, initializeReq)
	receive(t, first.in)
	send(t, h.editorIn, initializedNt)
	receive(t, first.in)
	first.close()

	second := newFakeServer()
	defer second.close()
	errc := attach(t, h.bridge, "second", second)

	replayed := receive(t, second.in)
	assert.Equal(t, "initialize", gjson.Get(replayed, "method").String())
	assert.Equal(t, "lsphost-replay-2", gjson.Get(replayed, "id").String())
	assert.Equal(t, "file:///proj", gjson.Get(replayed, "params.rootUri").String())
	assert.Equal(t, initializedNt, receive(t, second.in))
	require.NoError(t, <-errc)

	// The reply to the replayed request is hidden from the editor.
	send(t, second.stdoutW, `{"jsonrpc":"2.0","id":"lsphost-replay-2","result":{}}`)
	note := `{"jsonrpc":"2.0","method":"window/logMessage","params":{"type":3,"message":"hi"}}`
	send(t, second.stdoutW, note)
	assert.Equal(t, note, receive(t, h.editorOut))

	// Editor traffic now reaches the new server.
	hover := `{"jsonrpc":"2.0","id":2,"method":"textDocument/hover","params":{}}`
	send(t, h.editorIn, hover)
	assert.Equal(t, hover, receive(t, second.in))
}

func TestBridgeRunStopsOnExit(t *testing.T) {
	h := newHarness(t)
	srv := newFakeServer()
	defer srv.close()
	require.NoError(t, <-attach(t, h.bridge, "one", srv))

	send(t, h.editorIn, `{"jsonrpc":"2.0","id":9,"method":"shutdown"}`)
	receive(t, srv.in)
	send(t, h.editorIn, `{"jsonrpc":"2.0","method":"exit"}`)
	receive(t, srv.in)

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after exit")
	}
	assert.True(t, h.bridge.Shutdown())
}

func TestBridgeRunReturnsOnEditorEOF(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.editorIn.Close())

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after EOF")
	}
	assert.False(t, h.bridge.Shutdown())
}

func TestBridgeRunOnlyOnce(t *testing.T) {
	b := New(strings.NewReader(""), io.Discard, nil)
	require.NoError(t, b.Run(context.Background()))

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyRunning)
}
