package remote

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
)

// fakeTransport queues inbound chunks and collects writes.
type fakeTransport struct {
	in       [][]byte
	out      bytes.Buffer
	closed   bool
	recvErr  error
	sendErr  error
	maxWrite int
	recvs    int
}

func (t *fakeTransport) push(p []byte) { t.in = append(t.in, append([]byte(nil), p...)) }

func (t *fakeTransport) Recv(p []byte) (int, error) {
	t.recvs++
	if t.recvErr != nil {
		return 0, t.recvErr
	}
	if len(t.in) == 0 {
		return 0, nil
	}
	chunk := t.in[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		t.in[0] = chunk[n:]
	} else {
		t.in = t.in[1:]
	}
	return n, nil
}

func (t *fakeTransport) Send(p []byte) (int, error) {
	if t.sendErr != nil {
		return 0, t.sendErr
	}
	if t.maxWrite > 0 && len(p) > t.maxWrite {
		p = p[:t.maxWrite]
	}
	return t.out.Write(p)
}

func (t *fakeTransport) Close() error       { t.closed = true; return nil }
func (t *fakeTransport) RemoteAddr() string { return "fake" }

// fakeAcceptor hands out queued transports.
type fakeAcceptor struct {
	pending []Transport
	calls   int
	err     error
	closed  bool
}

func (a *fakeAcceptor) Accept() (Transport, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	if len(a.pending) == 0 {
		return nil, ErrNoClient
	}
	t := a.pending[0]
	a.pending = a.pending[1:]
	return t, nil
}

func (a *fakeAcceptor) Close() error { a.closed = true; return nil }
func (a *fakeAcceptor) Addr() string { return "fake:0" }

// stubEngine understands a handful of fixed scripts.
type stubEngine struct {
	ran []string
}

type stubChunk struct {
	e   *stubEngine
	src string
}

func (e *stubEngine) Load(src string) (Chunk, error) {
	if strings.HasPrefix(src, "syntax") {
		return nil, &LoadError{Code: 3, Err: errors.New("unexpected symbol")}
	}
	return stubChunk{e: e, src: src}, nil
}

func (e *stubEngine) Display(v any) string {
	if v == nil {
		return "nil"
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v.(string)
}

func (c stubChunk) Run() (any, error) {
	c.e.ran = append(c.e.ran, c.src)
	switch c.src {
	case "panic":
		panic("kaboom")
	case "fail":
		return nil, errors.New("attempt to call a nil value")
	case "nil":
		return nil, nil
	}
	return "ran:" + c.src, nil
}

type queueScheduler struct{ fns []func() }

func (q *queueScheduler) Schedule(fn func()) { q.fns = append(q.fns, fn) }

func (q *queueScheduler) runOnce() {
	fns := q.fns
	q.fns = nil
	for _, fn := range fns {
		fn()
	}
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestSession(t *testing.T) (*Session, *fakeTransport, *stubEngine) {
	t.Helper()
	eng := &stubEngine{}
	s := NewSession(Options{Engine: eng, Logger: quietLogger()})
	tr := &fakeTransport{}
	s.Attach(tr)
	return s, tr, eng
}

func connectTestSession(t *testing.T, subs Subscriptions) (*Session, *fakeTransport, *stubEngine) {
	t.Helper()
	s, tr, eng := newTestSession(t)
	tr.push(EncodeHandshake(subs))
	s.Tick()
	if !s.IsConnected() {
		t.Fatalf("handshake did not connect: state %v", s.State())
	}
	tr.out.Reset()
	return s, tr, eng
}

// sentFrames decodes and clears everything written to tr.
func sentFrames(t *testing.T, tr *fakeTransport) []Frame {
	t.Helper()
	var dec StreamDecoder
	dec.Write(tr.out.Bytes())
	tr.out.Reset()
	var frames []Frame
	for {
		f, ok, err := dec.Next()
		if err != nil {
			t.Fatalf("decode sent bytes: %v", err)
		}
		if !ok {
			break
		}
		frames = append(frames, f)
	}
	if dec.Buffered() != 0 {
		t.Fatalf("%d trailing bytes after last packet", dec.Buffered())
	}
	return frames
}

var errTestPipe = errors.New("broken pipe")
