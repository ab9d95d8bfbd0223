package remote

import (
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSAcceptor serves clients that speak the protocol over WebSocket binary
// messages, one command per message. Browser based trackers use this.
type WSAcceptor struct {
	ln       net.Listener
	srv      *http.Server
	pending  chan *wsTransport
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// ListenWebSocket serves path on addr.
func ListenWebSocket(addr, path string, logger *log.Logger) (*WSAcceptor, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	a := newWSAcceptor(logger)
	a.ln = ln
	mux := http.NewServeMux()
	if path == "" {
		path = "/"
	}
	mux.Handle(path, a)
	a.srv = &http.Server{Handler: mux}
	go func() {
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Printf("remote: websocket server: %v", err)
		}
	}()
	return a, nil
}

func newWSAcceptor(logger *log.Logger) *WSAcceptor {
	if logger == nil {
		logger = log.Default()
	}
	return &WSAcceptor{
		pending: make(chan *wsTransport, 1),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  BufferSize,
			WriteBufferSize: BufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (a *WSAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Printf("remote: websocket upgrade: %v", err)
		return
	}
	t := newWSTransport(conn)
	select {
	case a.pending <- t:
	default:
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "a client is already waiting")
		conn.WriteMessage(websocket.CloseMessage, msg)
		t.Close()
	}
}

func (a *WSAcceptor) Accept() (Transport, error) {
	select {
	case t := <-a.pending:
		return t, nil
	default:
		return nil, ErrNoClient
	}
}

func (a *WSAcceptor) Addr() string {
	if a.ln == nil {
		return ""
	}
	return a.ln.Addr().String()
}

func (a *WSAcceptor) Close() error {
	if a.srv == nil {
		return nil
	}
	return a.srv.Close()
}

// wsTransport queues inbound messages from a reader goroutine so Recv can
// poll without blocking. Only the queue crosses goroutines.
type wsTransport struct {
	conn *websocket.Conn
	msgs chan []byte
	errc chan error
	done chan struct{}
	once sync.Once
	rest []byte
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	conn.SetReadLimit(1 << 20)
	t := &wsTransport{
		conn: conn,
		msgs: make(chan []byte, 16),
		errc: make(chan error, 1),
		done: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *wsTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = io.EOF
			}
			t.errc <- err
			return
		}
		select {
		case t.msgs <- data:
		case <-t.done:
			return
		}
	}
}

func (t *wsTransport) Recv(p []byte) (int, error) {
	if len(t.rest) > 0 {
		n := copy(p, t.rest)
		t.rest = t.rest[n:]
		return n, nil
	}
	// readLoop queues every message before it reports an error. Queued
	// messages are delivered before the error.
	select {
	case m := <-t.msgs:
		n := copy(p, m)
		t.rest = m[n:]
		return n, nil
	default:
	}
	select {
	case err := <-t.errc:
		return 0, err
	default:
		return 0, nil
	}
}

// DiscardFrame drops the unread remainder of the current message.
func (t *wsTransport) DiscardFrame() int {
	n := len(t.rest)
	t.rest = nil
	return n
}

func (t *wsTransport) Send(p []byte) (int, error) {
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
